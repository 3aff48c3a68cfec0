package test_utils

import (
	"sync"
	"testing"
	"time"
)

// Assertion is one step of a sequential scenario. Steps that assert run as subtests; operations
// only mutate the shared fixture.
type Assertion struct {
	head         *Assertion
	id           string
	description  string
	assertion    func() bool
	shouldAssert bool
	next         *Assertion
}

type IAssertable interface {
	Concurrently(id string, desc string, actions ...func()) IAssertable
	Then(id string, description string, assertion func() bool) IAssertable
	Run(id string, description string, action func()) IAssertable
	Cases(cases []*Assertion) IAssertable
	Do(t *testing.T)
}

func NewTestCase(id string, description string, assertion func() bool) *Assertion {
	a := &Assertion{
		id:           id,
		description:  description,
		assertion:    assertion,
		shouldAssert: true,
	}
	a.head = a
	return a
}

func NewTestGroup(id string, description string) IAssertable {
	a := &Assertion{
		id:          id,
		description: description,
	}
	a.head = a
	return a
}

func (a *Assertion) append(next *Assertion) IAssertable {
	next.head = a.head
	a.next = next
	return next
}

func (a *Assertion) Concurrently(id string, desc string, actions ...func()) IAssertable {
	return a.append(&Assertion{
		id:          id,
		description: desc,
		assertion: func() bool {
			var wg sync.WaitGroup
			for _, act := range actions {
				wg.Add(1)
				go func(action func()) {
					defer wg.Done()
					action()
				}(act)
			}
			wg.Wait()
			return true
		},
	})
}

func (a *Assertion) Run(id string, description string, action func()) IAssertable {
	return a.append(&Assertion{
		id:          id,
		description: description,
		assertion: func() bool {
			action()
			return true
		},
	})
}

func (a *Assertion) Then(id string, description string, assertion func() bool) IAssertable {
	return a.append(&Assertion{
		id:           id,
		description:  description,
		assertion:    assertion,
		shouldAssert: true,
	})
}

func (a *Assertion) Cases(cases []*Assertion) IAssertable {
	var curr IAssertable = a
	for _, c := range cases {
		if c != nil {
			curr = curr.(*Assertion).append(c)
		}
	}
	return curr
}

func (a *Assertion) Do(t *testing.T) {
	t.Helper()
	startTime := time.Now()
	for curr := a.head; curr != nil; curr = curr.next {
		if curr.assertion == nil {
			t.Logf("group %s[%s]", curr.id, curr.description)
			continue
		}
		if !curr.shouldAssert {
			t.Logf("operation %s[%s]", curr.id, curr.description)
			curr.assertion()
			continue
		}
		step := curr
		t.Run(step.id, func(t *testing.T) {
			if !step.assertion() {
				t.Errorf("%s(%s) failed", step.id, step.description)
			}
		})
	}
	t.Log("all steps finished, overall runtime: ", time.Since(startTime))
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
