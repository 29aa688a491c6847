package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Format renders a C printf format string with the given arguments
func Format(format string, args []Value) (string, error) {
	var out strings.Builder
	next := 0
	take := func(verb string) (Value, error) {
		if next >= len(args) {
			return nil, errors.Errorf("printf: missing argument for %%%s", verb)
		}
		v := args[next]
		next++
		return v, nil
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		spec, end := scanSpec(format, i+1)
		i = end
		if spec.verb == 0 {
			// dangling % at the end of the format
			out.WriteByte('%')
			continue
		}
		if spec.verb == '%' {
			out.WriteByte('%')
			continue
		}

		if spec.width == "*" {
			v, err := take("*")
			if err != nil {
				return "", err
			}
			n, _ := v.(int64)
			spec.width = strconv.FormatInt(n, 10)
			if n < 0 {
				spec.flags += "-"
				spec.width = strconv.FormatInt(-n, 10)
			}
		}
		if spec.precision == ".*" {
			v, err := take("*")
			if err != nil {
				return "", err
			}
			n, _ := v.(int64)
			spec.precision = "." + strconv.FormatInt(n, 10)
		}

		v, err := take(string(spec.verb))
		if err != nil {
			return "", err
		}
		s, err := spec.render(v)
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	return out.String(), nil
}

type formatSpec struct {
	flags     string
	width     string
	precision string
	length    string
	verb      byte
}

// scanSpec parses the conversion after a % and returns the index of its verb
func scanSpec(format string, i int) (formatSpec, int) {
	var spec formatSpec
	for i < len(format) && strings.IndexByte("-+ #0", format[i]) >= 0 {
		spec.flags += string(format[i])
		i++
	}
	if i < len(format) && format[i] == '*' {
		spec.width = "*"
		i++
	} else {
		start := i
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		spec.width = format[start:i]
	}
	if i < len(format) && format[i] == '.' {
		start := i
		i++
		if i < len(format) && format[i] == '*' {
			i++
		} else {
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
		}
		spec.precision = format[start:i]
	}
	for i < len(format) && strings.IndexByte("hlLqjzt", format[i]) >= 0 {
		spec.length += string(format[i])
		i++
	}
	if i >= len(format) {
		return spec, len(format) - 1
	}
	spec.verb = format[i]
	return spec, i
}

func (s formatSpec) goFormat(verb string) string {
	return "%" + s.flags + s.width + s.precision + verb
}

func (s formatSpec) render(v Value) (string, error) {
	switch s.verb {
	case 'd', 'i':
		n, err := integer(v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(s.goFormat("d"), s.signed(n)), nil
	case 'u', 'x', 'X', 'o':
		n, err := integer(v)
		if err != nil {
			return "", err
		}
		verb := map[byte]string{'u': "d", 'x': "x", 'X': "X", 'o': "o"}[s.verb]
		return fmt.Sprintf(s.goFormat(verb), s.unsigned(n)), nil
	case 'c':
		n, err := integer(v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(s.goFormat("c"), rune(byte(n))), nil
	case 's':
		switch str := v.(type) {
		case string:
			return fmt.Sprintf(s.goFormat("s"), str), nil
		case nil:
			return fmt.Sprintf(s.goFormat("s"), "(null)"), nil
		default:
			return "", errors.Errorf("printf: %%s expects a string, got %T", v)
		}
	case 'f', 'F', 'e', 'E', 'g', 'G':
		n, err := integer(v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(s.goFormat(string(s.verb)), float64(n)), nil
	case 'p':
		if v == nil {
			return fmt.Sprintf("%"+s.flags+s.width+"s", "(nil)"), nil
		}
		return fmt.Sprintf("%"+s.flags+s.width+"s", fmt.Sprintf("%p", v)), nil
	}
	// unknown conversions are printed as written
	return "%" + s.flags + s.width + s.precision + s.length + string(s.verb), nil
}

// signed truncates n to the width given by the length modifier
func (s formatSpec) signed(n int64) int64 {
	switch s.length {
	case "hh":
		return int64(int8(n))
	case "h":
		return int64(int16(n))
	case "":
		return int64(int32(n))
	}
	return n
}

func (s formatSpec) unsigned(n int64) uint64 {
	switch s.length {
	case "hh":
		return uint64(uint8(n))
	case "h":
		return uint64(uint16(n))
	case "":
		return uint64(uint32(n))
	}
	return uint64(n)
}

func integer(v Value) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("printf: expected an integer, got %T", v)
}
