package interp

import (
	"io"

	"github.com/pkg/errors"
)

// external runs a library routine the program only declares
func (m *Machine) external(name string, args []Value) (Value, error) {
	switch name {
	case "printf":
		if len(args) < 1 {
			return nil, errors.New("printf: missing format")
		}
		return m.printTo(m.options.Stdout, name, args[0], args[1:])
	case "fprintf":
		if len(args) < 2 {
			return nil, errors.New("fprintf: missing stream or format")
		}
		handle, err := handleArg(name, args[0])
		if err != nil {
			return nil, err
		}
		return m.printTo(handle.File, name, args[1], args[2:])
	case "puts":
		if len(args) != 1 {
			return nil, errors.New("puts: expects one argument")
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, errors.Errorf("puts: expected a string, got %T", args[0])
		}
		if _, err := io.WriteString(m.options.Stdout, s+"\n"); err != nil {
			return nil, err
		}
		return int64(len(s) + 1), nil
	case "fopen":
		if len(args) != 2 {
			return nil, errors.New("fopen: expects a path and a mode")
		}
		path, ok1 := args[0].(string)
		mode, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, errors.New("fopen: path and mode must be strings")
		}
		file, err := m.options.FS.Open(path, mode)
		if err != nil {
			log.Debugf("fopen failed: %s", err)
			return nil, nil
		}
		return &Handle{Path: path, File: file}, nil
	case "fclose":
		if len(args) != 1 {
			return nil, errors.New("fclose: expects one argument")
		}
		handle, err := handleArg(name, args[0])
		if err != nil {
			return nil, err
		}
		if err := handle.File.Close(); err != nil {
			return nil, errors.Wrap(err, "fclose")
		}
		return int64(0), nil
	case "rand":
		return int64(m.rand.Int31()), nil
	case "abort":
		return nil, errors.New("abort called")
	}
	return nil, errors.Errorf("external routine %s is not available", name)
}

func (m *Machine) printTo(w io.Writer, name string, format Value, args []Value) (Value, error) {
	text, ok := format.(string)
	if !ok {
		return nil, errors.Errorf("%s: format must be a string, got %T", name, format)
	}
	out, err := Format(text, args)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return nil, errors.Wrap(err, name)
	}
	return int64(len(out)), nil
}

func handleArg(name string, v Value) (*Handle, error) {
	handle, ok := v.(*Handle)
	if !ok || handle == nil {
		return nil, errors.Errorf("%s: invalid stream %v", name, v)
	}
	return handle, nil
}
