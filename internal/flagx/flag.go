// Package flagx lets several flag sets share one command line: each set
// parses only the arguments it owns.
package flagx

import (
	"flag"
	"os"
	"strconv"
	"strings"
)

// FilterArgs keeps the arguments naming one of allowed, together with their
// values. A value is either joined with '=' ("-c=conf.yaml") or the next
// argument when that does not look like a flag. Negative numbers count as
// values, so "-w -1" keeps the -1. Filtering stops at "--".
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		names[f] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if names[name] {
				out = append(out, arg)
			}
			continue
		}
		if !names[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && isValue(args[i+1]) {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

func isValue(s string) bool {
	if !strings.HasPrefix(s, "-") {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// ConfigPathFrom returns the value of the last -c or -config argument in args,
// or "" when there is none.
func ConfigPathFrom(args []string) string {
	var path string
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to a JSON or YAML config file")
	fs.StringVar(&path, "c", "", "path to a JSON or YAML config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))
	return path
}

// ConfigPath is ConfigPathFrom applied to the process arguments.
func ConfigPath() string {
	return ConfigPathFrom(os.Args[1:])
}
