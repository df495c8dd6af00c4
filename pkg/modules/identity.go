package modules

import (
	"fmt"
	"strconv"

	"github.com/archspace/archspace/pkg/core"
)

// IdentityModule passes every input to the output at the same position. With
// one connection the ports are In and Out, otherwise In0..In<n-1> and
// Out0..Out<n-1>.
type IdentityModule struct {
	core.BaseModule
	n int
}

// NewIdentity creates an identity module with n connections.
func NewIdentity(s *core.Scope, n int) (*IdentityModule, error) {
	if err := checkCount("identity connections", n); err != nil {
		return nil, err
	}
	m := &IdentityModule{n: n}
	m.Init(s, m, "Identity")
	for i := 0; i < n; i++ {
		m.RegisterInput(portName("In", i, n))
		m.RegisterOutput(portName("Out", i, n))
	}
	return m, nil
}

// Identity returns the ports of a new identity module.
func Identity(s *core.Scope, n int) (core.Fragment, error) {
	m, err := NewIdentity(s, n)
	if err != nil {
		return core.Fragment{}, err
	}
	return m.IO(), nil
}

// Compile is a no-op.
func (m *IdentityModule) Compile() error { return nil }

// Forward copies each input value to its output.
func (m *IdentityModule) Forward() error {
	in, err := m.InputValues()
	if err != nil {
		return err
	}
	out := make(map[string]any, m.n)
	for i := 0; i < m.n; i++ {
		out[portName("Out", i, m.n)] = in[portName("In", i, m.n)]
	}
	return m.SetOutputValues(out)
}

// portName returns prefix for a single connection and prefix<i> otherwise.
func portName(prefix string, i, n int) string {
	if n == 1 {
		return prefix
	}
	return prefix + strconv.Itoa(i)
}

// IndexedName returns prefix<i>, the port naming used by multi-input
// combiners such as the ones passed to SISOSplitCombine.
func IndexedName(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}

func checkCount(what string, n int) error {
	if n <= 0 {
		return core.NewContractError(fmt.Sprintf("%s must be positive, got %d", what, n), nil).
			WithCode(core.ErrCodeNonPositiveCount)
	}
	return nil
}
