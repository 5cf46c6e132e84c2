// Copyright 2025 The meridian Authors
// This file is part of the meridian library.
//
// The meridian library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The meridian library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the meridian library. If not, see <http://www.gnu.org/licenses/>.

package task

import (
	"os"
	"os/signal"
	"syscall"
)

// InterruptSignals returns a channel delivering OS termination signals and a
// release function detaching it again. The channel is buffered so a signal
// arriving before anyone listens is not lost.
func InterruptSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// Wait merges the three shutdown triggers - an OS signal on sigc, an explicit
// RequestStop and an essential-task exit inside the manager - and blocks
// until the terminal status is decided. The manager itself guarantees that
// the first trigger wins, so a signal racing a fatal exit cannot downgrade
// it to a graceful stop.
func Wait(m *Manager, sigc <-chan os.Signal) ExitStatus {
	select {
	case <-m.ExitSignal():
	case sig := <-sigc:
		m.log.Info("Caught termination signal", "sig", sig)
		m.RequestStop()
		<-m.ExitSignal()
	}
	return m.Status()
}
