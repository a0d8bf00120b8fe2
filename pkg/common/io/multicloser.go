package io

import (
	"io"
	"sync"

	"gitea.xscloud.ru/xscloud/reporter/pkg/common/errors"
)

// MultiCloser closes added closers in reverse order, so a resource is
// released before the one it was built on. Close is done once.
type MultiCloser interface {
	io.Closer
	AddCloser(closer io.Closer)
}

func NewMultiCloser() MultiCloser {
	return &multiCloser{}
}

type multiCloser struct {
	mu      sync.Mutex
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	m.mu.Lock()
	closers := m.closers
	m.closers = nil
	m.mu.Unlock()

	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = errors.Join(err, closers[i].Close())
	}
	return err
}

func (m *multiCloser) AddCloser(closer io.Closer) {
	m.mu.Lock()
	m.closers = append(m.closers, closer)
	m.mu.Unlock()
}
