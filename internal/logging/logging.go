/*------------------------------------------------------------------
 *
 * Purpose:	Process-wide structured logger, used by every component
 *		in place of raw fmt.Printf/log.Printf.
 *
 *---------------------------------------------------------------*/
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// SetVerbose switches the process-wide logger between Info (default)
// and Debug level, driven by the -v CLI flag.
func SetVerbose(verbose bool) {
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// L returns the process-wide logger.
func L() *log.Logger { return logger }
