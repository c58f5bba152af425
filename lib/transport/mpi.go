//go:build mpi

package transport

// The cgo preamble and the Init/Finalize/rank/size/error handling below
// follow github.com/marcusthierfelder/mpi, with changes to the type system and
// compilation instructions. Its license:
//
// Copyright (c) 2017 Marcus Thierfelder
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// NOTE: Use
// $ mpicc --showme:compile
// $ mpicc --showme:link
// To figure out CFLAGS and LDFLAGS, respectively

/*
#cgo LDFLAGS: -pthread -L/usr/lib/x86_64-linux-gnu/openmpi/lib -lmpi
#cgo CFLAGS: -std=gnu99 -Wall -I/usr/lib/x86_64-linux-gnu/openmpi/include/openmpi -I/usr/lib/x86_64-linux-gnu/openmpi/include -pthread
#include <mpi.h>
#include <stdlib.h>
#include <string.h>

MPI_Comm get_MPI_COMM_WORLD() {
    return (MPI_Comm)(MPI_COMM_WORLD);
}

MPI_Datatype get_MPI_LONG_LONG() {
    return (MPI_Datatype)MPI_LONG_LONG;
}

MPI_Datatype get_MPI_BYTE() {
    return (MPI_Datatype)MPI_BYTE;
}
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"time"
	"unsafe"
)

// mpiPoll is how often a pending request is tested while waiting, so that
// context cancellation is noticed.
const mpiPoll = 100 * time.Microsecond

var (
	commWorld C.MPI_Comm     = C.get_MPI_COMM_WORLD()
	mpiInt64  C.MPI_Datatype = C.get_MPI_LONG_LONG()
	mpiByte   C.MPI_Datatype = C.get_MPI_BYTE()
)

func mpiError(code C.int) error {
	if code == 0 {
		return nil
	}
	buf := make([]C.char, C.MPI_MAX_ERROR_STRING)
	n := C.int(0)
	C.MPI_Error_string(code, &buf[0], &n)
	return fmt.Errorf("%w: MPI error: %s", ErrClosed, C.GoString(&buf[0]))
}

// MPI is a communicator over MPI_COMM_WORLD. MPI calls must all come from
// one OS thread, so callers should only use an MPI communicator from the
// goroutine that created it.
type MPI struct {
	rank, size int
}

var _ Comm = &MPI{}

// NewMPI initializes MPI and locks the calling goroutine to its OS thread.
func NewMPI() (*MPI, error) {
	runtime.LockOSThread()
	if err := mpiError(C.MPI_Init(nil, nil)); err != nil {
		return nil, err
	}
	var rank, size C.int
	if err := mpiError(C.MPI_Comm_rank(commWorld, &rank)); err != nil {
		return nil, err
	}
	if err := mpiError(C.MPI_Comm_size(commWorld, &size)); err != nil {
		return nil, err
	}
	return &MPI{rank: int(rank), size: int(size)}, nil
}

func (m *MPI) Rank() int { return m.rank }
func (m *MPI) Size() int { return m.size }

func (m *MPI) Alltoall(ctx context.Context, send []int64) ([]int64, error) {
	if len(send) != m.size {
		return nil, fmt.Errorf("Alltoall needs %d send values, got %d.",
			m.size, len(send))
	}
	recv := make([]int64, m.size)
	err := C.MPI_Alltoall(unsafe.Pointer(&send[0]), 1, mpiInt64,
		unsafe.Pointer(&recv[0]), 1, mpiInt64, commWorld)
	if err := mpiError(err); err != nil {
		return nil, err
	}
	return recv, nil
}

// mpiRequest owns a C buffer for the lifetime of an asynchronous operation,
// since MPI may touch it after the call that started the operation returns.
type mpiRequest struct {
	req  C.MPI_Request
	cbuf unsafe.Pointer
	recv     bool
	out      []byte
	src, tag int

	done bool
	err  error
}

func (m *MPI) Isend(
	ctx context.Context, dst, tag int, buf []byte,
) (Request, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	} else if err := checkPeer(m, dst); err != nil {
		return nil, err
	}
	r := &mpiRequest{cbuf: C.malloc(C.size_t(len(buf) + 1))}
	if len(buf) > 0 {
		C.memcpy(r.cbuf, unsafe.Pointer(&buf[0]), C.size_t(len(buf)))
	}
	err := C.MPI_Isend(r.cbuf, C.int(len(buf)), mpiByte, C.int(dst),
		C.int(tag), commWorld, &r.req)
	if err := mpiError(err); err != nil {
		C.free(r.cbuf)
		return nil, err
	}
	return r, nil
}

func (m *MPI) Irecv(
	ctx context.Context, src, tag int, buf []byte,
) (Request, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	} else if err := checkPeer(m, src); err != nil {
		return nil, err
	}
	r := &mpiRequest{
		cbuf: C.malloc(C.size_t(len(buf) + 1)), recv: true, out: buf,
		src: src, tag: tag,
	}
	// One spare byte lets an oversized message show up as a size mismatch
	// rather than an MPI truncation error.
	err := C.MPI_Irecv(r.cbuf, C.int(len(buf)+1), mpiByte, C.int(src),
		C.int(tag), commWorld, &r.req)
	if err := mpiError(err); err != nil {
		C.free(r.cbuf)
		return nil, err
	}
	return r, nil
}

func (r *mpiRequest) Wait(ctx context.Context) error {
	if r.done {
		return r.err
	}
	var status C.MPI_Status
	for {
		flag := C.int(0)
		if err := mpiError(C.MPI_Test(&r.req, &flag, &status)); err != nil {
			r.finish(err)
			return err
		}
		if flag != 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(mpiPoll):
		}
	}

	if r.recv {
		count := C.int(0)
		C.MPI_Get_count(&status, mpiByte, &count)
		if int(count) != len(r.out) {
			r.finish(fmt.Errorf("%w: expected %d bytes from rank %d "+
				"(tag %d), got %d", ErrSizeMismatch, len(r.out), r.src,
				r.tag, int(count)))
			return r.err
		}
		if len(r.out) > 0 {
			C.memcpy(unsafe.Pointer(&r.out[0]), r.cbuf, C.size_t(len(r.out)))
		}
	}
	r.finish(nil)
	return nil
}

func (r *mpiRequest) finish(err error) {
	r.done, r.err = true, err
	C.free(r.cbuf)
	r.cbuf = nil
}

// Close finalizes MPI. The communicator cannot be used afterwards.
func (m *MPI) Close() error {
	return mpiError(C.MPI_Finalize())
}

// Open returns the MPI communicator.
func Open() (Comm, error) { return NewMPI() }
