package cli

import (
	"flag"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// newFlagSet returns a silent flag set for one command.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseArgs parses flags anywhere on the command line and returns the
// positional arguments in order. Tokens like "-5" are positional so that
// negative numbers reach validation instead of failing as unknown flags.
func parseArgs(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !isFlag(arg) {
			positional = append(positional, arg)
			continue
		}

		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if f := fs.Lookup(name); f != nil && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}

	if err := fs.Parse(flags); err != nil {
		if err == flag.ErrHelp {
			return nil, err
		}
		return nil, usagef(fs.Name(), "%v", err)
	}
	if len(positional) != want {
		return nil, usagef(fs.Name(), "expected %d argument(s), got %d", want, len(positional))
	}
	return positional, nil
}

func isFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	_, err := strconv.ParseFloat(arg, 64)
	return err != nil
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// positiveInt parses a quantity argument.
func positiveInt(value, field string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, failf(err, "%s must be a valid integer.", field)
	}
	if n <= 0 {
		return 0, failf(nil, "%s must be a positive integer.", field)
	}
	return n, nil
}

// nonNegativeMoney parses a price or cost argument.
func nonNegativeMoney(value, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, failf(err, "%s must be a valid number.", field)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, failf(nil, "%s cannot be negative.", field)
	}
	return d, nil
}

// id parses a row identifier argument.
func id(cmd, value, field string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, usagef(cmd, "%s must be an integer, got %q", field, value)
	}
	return n, nil
}
