package serialmux

// Allow list of two character commands understood by the skin bridge
// firmware. Anything outside this list is refused before it reaches the
// port.
var allowedCommands = []string{
	"??", // Query bridge firmware information
	"?V", // Read firmware version
	"?N", // Read controller serial number
	"?M", // Read matrix geometry (rows x cols)

	// Streaming mode
	"R1", // Controller test mode: stream the raw capacitive matrix
	"R0", // Controller normal mode: stop the raw stream

	// Controller-internal auto-calibration register
	"A1", // Enable
	"A0", // Disable

	// Frame rate
	"S1", // 10 frames/second
	"S2", // 25 frames/second
	"S5", // 50 frames/second

	"X!", // Soft-reset the bridge
}

// IsAllowedCommand reports whether the command is on the bridge allow-list.
func IsAllowedCommand(command string) bool {
	for _, c := range allowedCommands {
		if command == c {
			return true
		}
	}
	return false
}
