// Package netns resolves the network namespace a socket or process lives in.
package netns

import (
	"errors"
	"fmt"

	"github.com/josharian/native"
	"github.com/prometheus/procfs"

	"github.com/scitags/conntuple/kernel"
)

var ErrNoNetns = errors.New("no network namespace")

// FromSock follows sk->__sk_common.skc_net->ns.inum with r.
func FromSock[R kernel.Reader](r R, sk uint64) (uint32, error) {
	var ptr [8]byte
	if err := r.Read(sk, kernel.SkNet, ptr[:]); err != nil {
		return 0, fmt.Errorf("error reading skc_net: %w", err)
	}

	var inum [4]byte
	if err := r.Read(native.Endian.Uint64(ptr[:]), kernel.NetNsInum, inum[:]); err != nil {
		return 0, fmt.Errorf("error reading ns.inum: %w", err)
	}

	return native.Endian.Uint32(inum[:]), nil
}

// Procfs resolves the namespace of a process through /proc/<pid>/ns/net.
type Procfs struct {
	fs procfs.FS
}

func NewProcfs(procRoot string) (*Procfs, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("error opening procfs at %s: %w", procRoot, err)
	}
	return &Procfs{fs: fs}, nil
}

func (p *Procfs) NetnsByPid(pid uint32) (uint32, error) {
	proc, err := p.fs.Proc(int(pid))
	if err != nil {
		return 0, fmt.Errorf("error finding pid %d: %w", pid, err)
	}
	return p.namespace(proc)
}

func (p *Procfs) namespace(proc procfs.Proc) (uint32, error) {
	nss, err := proc.Namespaces()
	if err != nil {
		return 0, fmt.Errorf("error listing the namespaces of pid %d: %w", proc.PID, err)
	}

	ns, ok := nss["net"]
	if !ok {
		return 0, fmt.Errorf("%w for pid %d", ErrNoNetns, proc.PID)
	}

	return ns.Inode, nil
}

// Self resolves the namespace of the calling process.
func (p *Procfs) Self() (uint32, error) {
	proc, err := p.fs.Self()
	if err != nil {
		return 0, fmt.Errorf("error finding ourselves: %w", err)
	}
	return p.namespace(proc)
}
