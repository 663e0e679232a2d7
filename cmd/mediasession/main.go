// Command mediasession lists, watches and records local media devices.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pion/logging"
)

type mediaOptions struct {
	Width        int     `long:"width" description:"Preferred capture width" default:"640"`
	Height       int     `long:"height" description:"Preferred capture height" default:"480"`
	FrameRate    float64 `long:"framerate" description:"Preferred capture frame rate" default:"30"`
	VideoBitRate int     `long:"videobitrate" description:"VP8 target bit rate" default:"1000000"`
	AudioBitRate int     `long:"audiobitrate" description:"Opus target bit rate" default:"64000"`
}

type globalOptions struct {
	ConfigFile  string       `short:"C" long:"configfile" description:"Path to an INI configuration file"`
	Debug       bool         `short:"d" long:"debug" description:"Enable debug logging"`
	MetricsAddr string       `long:"metrics" description:"Expose prometheus metrics on this address"`
	Media       mediaOptions `group:"Media Options" namespace:"media"`
}

var opts globalOptions

func loggerFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	if opts.Debug {
		f.DefaultLogLevel = logging.LogLevelDebug
	}
	return f
}

// loadConfigFile applies the INI file named by --configfile, if any, before
// the command line is parsed for real so flags take precedence.
func loadConfigFile(parser *flags.Parser) error {
	var pre struct {
		ConfigFile string `short:"C" long:"configfile"`
	}
	preParser := flags.NewParser(&pre, flags.IgnoreUnknown)
	if _, err := preParser.Parse(); err != nil {
		return err
	}
	if pre.ConfigFile == "" {
		return nil
	}
	if err := flags.NewIniParser(parser).ParseFile(pre.ConfigFile); err != nil {
		return fmt.Errorf("unable to load %s: %w", pre.ConfigFile, err)
	}
	return nil
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("devices", "List media devices",
		"Lists cameras, microphones and speakers with their permission state.",
		&devicesCommand{})
	parser.AddCommand("watch", "Watch media devices",
		"Prints the device list whenever devices or permissions change.",
		&watchCommand{})
	parser.AddCommand("record", "Record a camera or the desktop",
		"Acquires a stream and records it to files until the duration elapses or the stream ends.",
		&recordCommand{})

	if err := loadConfigFile(parser); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
