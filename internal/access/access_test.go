package access

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyListAllowsEveryone(t *testing.T) {
	l, err := NewAllowList(nil)
	require.NoError(t, err)
	assert.True(t, l.Allowed("10.0.0.9"))
}

func TestAllowListAddAndReset(t *testing.T) {
	l, err := NewAllowList([]string{"127.0.0.1", "192.168.0.10"})
	require.NoError(t, err)

	assert.True(t, l.Allowed("192.168.0.10"))
	assert.False(t, l.Allowed("192.168.0.11"))

	require.NoError(t, l.Add("192.168.0.11"))
	require.NoError(t, l.Add("192.168.0.11"))
	assert.True(t, l.Allowed("192.168.0.11"))
	assert.Equal(t, []string{"127.0.0.1", "192.168.0.10", "192.168.0.11"}, l.List())

	l.Reset()
	assert.Equal(t, []string{"127.0.0.1", "192.168.0.10"}, l.List())
	assert.Equal(t, l.Defaults(), l.List())
	assert.False(t, l.Allowed("192.168.0.11"))
}

func TestAllowListInvalidAddress(t *testing.T) {
	l, err := NewAllowList([]string{"127.0.0.1"})
	require.NoError(t, err)

	for _, bad := range []string{"", "localhost", "300.1.1.1", "10.0.0.1:502"} {
		assert.True(t, errors.Is(l.Add(bad), ErrInvalidAddress), bad)
	}
	assert.False(t, l.Allowed("não-é-ip"))

	_, err = NewAllowList([]string{"x"})
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestPolicyCheck(t *testing.T) {
	p, err := NewPolicy([]string{"10.0.0.1"}, []string{"10.0.0.2"})
	require.NoError(t, err)

	assert.NoError(t, p.Check(Read, "10.0.0.1"))
	assert.True(t, errors.Is(p.Check(Read, "10.0.0.2"), ErrAccessDenied))
	assert.NoError(t, p.Check(Write, "10.0.0.2"))
	assert.True(t, errors.Is(p.Check(Write, "10.0.0.1"), ErrAccessDenied))
}

func TestPolicyObserver(t *testing.T) {
	p, err := NewPolicy(nil, []string{"10.0.0.2"})
	require.NoError(t, err)

	var changes []Change
	p.SetObserver(func(c Change) { changes = append(changes, c) })

	require.NoError(t, p.Add(Write, "10.0.0.3"))
	assert.Error(t, p.Add(Write, "lixo"))
	p.Reset(Write)

	require.Len(t, changes, 2)
	assert.Equal(t, Change{Operation: Write, Action: "add", IP: "10.0.0.3"}, changes[0])
	assert.Equal(t, "reset", changes[1].Action)
	assert.Equal(t, []string{"10.0.0.2"}, p.List(Write).List())
}

func TestSetObserverWhileNotifying(t *testing.T) {
	p, err := NewPolicy(nil, nil)
	require.NoError(t, err)

	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.SetObserver(func(Change) { calls.Add(1) })
		}()
		go func() {
			defer wg.Done()
			p.Reset(Read)
		}()
	}
	wg.Wait()

	p.Reset(Read)
	assert.Positive(t, calls.Load())
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "10.1.1.1", HostOf("10.1.1.1:5020"))
	assert.Equal(t, "10.1.1.1", HostOf("10.1.1.1"))
	assert.Equal(t, "::1", HostOf("[::1]:502"))
}
