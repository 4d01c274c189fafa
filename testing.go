package ikc

import (
	"sync"

	"github.com/nanvix-go/ikc/internal/kernel"
)

// MockRaw is a scriptable fake of kernel.Raw, the IKC analogue of the
// teacher's MockBackend: each method can be overridden with a sequence of
// canned results, falling back to an embedded Loopback for anything not
// scripted so a test only needs to stub the call it cares about
// (spec.md §8 scenario 4, "flow config raw-call is stubbed to return
// -EBUSY twice then size").
type MockRaw struct {
	*kernel.Loopback

	mu sync.Mutex

	mailboxAwriteScript []int
	mailboxAreadScript  []int
	mailboxWaitScript   []int
	portalAwriteScript  []int
	portalAreadScript   []int
	portalWaitScript    []int

	mailboxAwriteCalls int
	mailboxAreadCalls  int
	mailboxWaitCalls   int
	portalAwriteCalls  int
	portalAreadCalls   int
	portalWaitCalls    int
}

// NewMockRaw creates a MockRaw backed by a real Loopback for every
// unscripted call.
func NewMockRaw(node int) *MockRaw {
	return &MockRaw{Loopback: kernel.NewLoopback(node)}
}

// ScriptMailboxAwrite queues results MailboxAwrite returns in order before
// falling back to the embedded Loopback.
func (m *MockRaw) ScriptMailboxAwrite(results ...int) {
	m.mu.Lock()
	m.mailboxAwriteScript = append(m.mailboxAwriteScript, results...)
	m.mu.Unlock()
}

func (m *MockRaw) ScriptMailboxAread(results ...int) {
	m.mu.Lock()
	m.mailboxAreadScript = append(m.mailboxAreadScript, results...)
	m.mu.Unlock()
}

func (m *MockRaw) ScriptMailboxWait(results ...int) {
	m.mu.Lock()
	m.mailboxWaitScript = append(m.mailboxWaitScript, results...)
	m.mu.Unlock()
}

func (m *MockRaw) ScriptPortalAwrite(results ...int) {
	m.mu.Lock()
	m.portalAwriteScript = append(m.portalAwriteScript, results...)
	m.mu.Unlock()
}

func (m *MockRaw) ScriptPortalAread(results ...int) {
	m.mu.Lock()
	m.portalAreadScript = append(m.portalAreadScript, results...)
	m.mu.Unlock()
}

func (m *MockRaw) ScriptPortalWait(results ...int) {
	m.mu.Lock()
	m.portalWaitScript = append(m.portalWaitScript, results...)
	m.mu.Unlock()
}

func popScript(script *[]int) (int, bool) {
	if len(*script) == 0 {
		return 0, false
	}
	v := (*script)[0]
	*script = (*script)[1:]
	return v, true
}

func (m *MockRaw) MailboxAwrite(mbxid int, buf []byte) int {
	m.mu.Lock()
	m.mailboxAwriteCalls++
	v, ok := popScript(&m.mailboxAwriteScript)
	m.mu.Unlock()
	if ok {
		return v
	}
	return m.Loopback.MailboxAwrite(mbxid, buf)
}

func (m *MockRaw) MailboxAread(mbxid int, buf []byte) int {
	m.mu.Lock()
	m.mailboxAreadCalls++
	v, ok := popScript(&m.mailboxAreadScript)
	m.mu.Unlock()
	if ok {
		return v
	}
	return m.Loopback.MailboxAread(mbxid, buf)
}

func (m *MockRaw) MailboxWait(mbxid int) int {
	m.mu.Lock()
	m.mailboxWaitCalls++
	v, ok := popScript(&m.mailboxWaitScript)
	m.mu.Unlock()
	if ok {
		return v
	}
	return m.Loopback.MailboxWait(mbxid)
}

func (m *MockRaw) PortalAwrite(portalid int, buf []byte) int {
	m.mu.Lock()
	m.portalAwriteCalls++
	v, ok := popScript(&m.portalAwriteScript)
	m.mu.Unlock()
	if ok {
		return v
	}
	return m.Loopback.PortalAwrite(portalid, buf)
}

func (m *MockRaw) PortalAread(portalid int, buf []byte) int {
	m.mu.Lock()
	m.portalAreadCalls++
	v, ok := popScript(&m.portalAreadScript)
	m.mu.Unlock()
	if ok {
		return v
	}
	return m.Loopback.PortalAread(portalid, buf)
}

func (m *MockRaw) PortalWait(portalid int) int {
	m.mu.Lock()
	m.portalWaitCalls++
	v, ok := popScript(&m.portalWaitScript)
	m.mu.Unlock()
	if ok {
		return v
	}
	return m.Loopback.PortalWait(portalid)
}

// CallCounts reports how many times each scriptable method has been
// invoked, for asserting retry counts in tests.
func (m *MockRaw) CallCounts() (mailboxAwrite, mailboxAread, mailboxWait, portalAwrite, portalAread, portalWait int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mailboxAwriteCalls, m.mailboxAreadCalls, m.mailboxWaitCalls,
		m.portalAwriteCalls, m.portalAreadCalls, m.portalWaitCalls
}
