package management

import "strings"

// signalRestart makes the subprocess restart its connection.
const signalRestart = "SIGUSR1"

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// escapeQuoted escapes a value for use inside a double-quoted argument.
func escapeQuoted(s string) string {
	return quoteEscaper.Replace(s)
}

func stateCommand(s string) string {
	return "state " + s + "\n"
}

func usernameCommand(tag, value string) string {
	return credentialCommand("username", tag, value)
}

func passwordCommand(tag, value string) string {
	return credentialCommand("password", tag, value)
}

func credentialCommand(verb, tag, value string) string {
	return verb + ` "` + escapeQuoted(tag) + `" "` + escapeQuoted(value) + "\"\n"
}

func signalCommand(name string) string {
	return "signal " + name + "\n"
}

func holdReleaseCommand() string {
	return "hold release\n"
}
