package term

// controlBytes maps one-letter mnemonics to the raw control byte written to
// the shell's input. The byte is sent as-is, not as a line.
var controlBytes = map[string]byte{
	"c": 0x03, // interrupt (SIGINT)
	"d": 0x04, // end of transmission
	"z": 0x1a, // suspend (SIGTSTP)
	"l": 0x0c, // clear screen
	"a": 0x01, // beginning of line
	"e": 0x05, // end of line
	"u": 0x15, // clear line
	"r": 0x12, // reverse search
}
