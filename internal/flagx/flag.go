// Package flagx lets several independent flag sets share one command line.
//
// The server reads its config file path, its dotenv path and its regular
// flags in separate passes; each pass only sees the arguments it owns.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// args is replaced in tests.
var args = func() []string { return os.Args[1:] }

// FilterArgs keeps only the flags named in allowed together with their
// values. Both "-f value" and "-f=value" forms are recognised; a following
// argument that starts with '-' is never taken as a value.
func FilterArgs(in []string, allowed []string) []string {
	known := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		known[f] = true
	}

	out := make([]string, 0, len(in))
	for i := 0; i < len(in); i++ {
		arg := in[i]
		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if known[name] {
				out = append(out, arg)
			}
			continue
		}
		if !known[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(in) && !strings.HasPrefix(in[i+1], "-") {
			out = append(out, in[i+1])
			i++
		}
	}
	return out
}

// JsonConfigFlags returns the JSON config path given via -c or -config.
func JsonConfigFlags() string {
	return lookup("json", "Path to config file", "config", "c")
}

// EnvFileFlag returns the dotenv file path given via -env-file, or "".
func EnvFileFlag() string {
	return lookup("envfile", "Path to .env file", "env-file")
}

// lookup parses a single string flag known under any of names. When a flag
// repeats, the last occurrence wins.
func lookup(set, usage string, names ...string) string {
	allowed := make([]string, 0, len(names))
	for _, n := range names {
		allowed = append(allowed, "-"+n)
	}

	var value string
	fs := flag.NewFlagSet(set, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, n := range names {
		fs.StringVar(&value, n, "", usage)
	}
	_ = fs.Parse(FilterArgs(args(), allowed))
	return value
}
