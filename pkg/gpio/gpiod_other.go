//go:build !linux

package gpio

import "github.com/itohio/gohx711/pkg/errcode"

// Chip is only available on Linux.
type Chip struct{}

// NewChip returns a backend whose operations all fail with errcode.Unsupported.
func NewChip(string) *Chip { return &Chip{} }

func unsupported(op string) error {
	return errcode.New(errcode.Unsupported, op, "gpio character device requires linux")
}

func (*Chip) Open(int) (Handle, error) { return 0, unsupported("gpio.open") }

func (*Chip) ClaimInput(Handle, int) error { return unsupported("gpio.claim_input") }

func (*Chip) ClaimOutput(Handle, int) error { return unsupported("gpio.claim_output") }

func (*Chip) Read(Handle, int) (Level, error) { return Low, unsupported("gpio.read") }

func (*Chip) Write(Handle, int, Level) error { return unsupported("gpio.write") }

func (*Chip) Free(Handle, int) error { return unsupported("gpio.free") }

func (*Chip) Close(Handle) error { return unsupported("gpio.close") }
