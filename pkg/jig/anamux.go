package jig

import (
	"github.com/halspa/halspa.go/pkg/repl"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// AnalogMux routes one of eight inputs of each of four multiplexers to the
// ADCs.
type AnalogMux struct {
	ex repl.Executor
}

const anamuxName = "anamux"

// NewAnalogMux binds the analog multiplexer controller.
func NewAnalogMux(ex repl.Executor) (*AnalogMux, error) {
	imports := joinLines(boardImports, "from sauce.analog_mux import AnalogMux")
	if err := bind(ex, imports, anamuxName, "AnalogMux", literal.Expr("i2c")); err != nil {
		return nil, err
	}
	return &AnalogMux{ex: ex}, nil
}

func checkMux(mux int) error {
	if mux < 1 || mux > 4 {
		return argError("mux must be 1-4, got %d", mux)
	}
	return nil
}

// Enable enables or inhibits a multiplexer.
func (m *AnalogMux) Enable(mux int, on bool) error {
	if err := checkMux(mux); err != nil {
		return err
	}
	_, err := m.ex.Call(anamuxName+".enable", mux, on)
	return err
}

// Select routes input pin of mux, inhibiting the mux while switching.
func (m *AnalogMux) Select(mux, pin int) error {
	if err := checkMux(mux); err != nil {
		return err
	}
	if pin < 0 || pin > 7 {
		return argError("mux input must be 0-7, got %d", pin)
	}
	_, err := m.ex.Call(anamuxName+".select", mux, pin)
	return err
}
