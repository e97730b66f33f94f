package kernel

import (
	"github.com/Askannz/munal-os/abi"
	hclog "github.com/hashicorp/go-hclog"
)

// Invocation carries one kernel call across the sandbox boundary.
type Invocation struct {
	K    *KernelContext
	G    *Guest
	L    hclog.Logger
	Args [4]int32
}

// calls is the kernel-call table. IDs are frozen; see package abi.
// Handlers are registered from init() in the calls_*.go files.
var calls [abi.CallMax]func(*Invocation) int32

// invoke dispatches one kernel call from a guest. Every argument that
// names guest memory is validated by the handler before dereference; a
// violation costs the guest an errno or its life, never the kernel.
func (k *KernelContext) invoke(g *Guest, id int32, args [4]int32) int32 {
	g.calls++
	if g.calls > k.callBudget {
		// fuel policy: the guest is crashed once its quantum returns
		g.overBudget = true
		return -abi.EAGAIN
	}

	if id < 0 || id >= abi.CallMax || calls[id] == nil {
		k.log.Warn("unknown kernel call", "guest", g.Name, "call", id)
		return -abi.ENOSYS
	}

	return calls[id](&Invocation{K: k, G: g, L: k.log, Args: args})
}
