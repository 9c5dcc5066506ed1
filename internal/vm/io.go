package vm

import (
	"io"

	"loopvm/internal/errors"
)

// readByte implements the In contract: one byte from In, or 0 at EOF.
func (m *Machine) readByte() (byte, error) {
	var buf [1]byte
	n, err := m.In.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err == io.EOF || err == nil {
		return 0, nil
	}
	return 0, errors.IOError(err)
}

// writeByte implements the Out contract: write one byte, flushing
// immediately when the machine is configured for interactive use.
func (m *Machine) writeByte(v byte) error {
	if _, err := m.Out.Write([]byte{v}); err != nil {
		return errors.IOError(err)
	}
	if m.Flush {
		if f, ok := m.Out.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return errors.IOError(err)
			}
		}
	}
	return nil
}
