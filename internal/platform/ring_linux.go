//go:build linux

package platform

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Handle identifies the FileContext that owns a prepared or completed ring
// operation. It is carried as SQE user-data and handed back on the matching
// CQE, replacing raw-pointer tagging with an index into the caller's context
// arena.
type Handle uint32

// Opcodes, numbered exactly as the kernel's IORING_OP_* enum.
const (
	opRead     = 22
	opWrite    = 23
	opOpenAt   = 18
	opClose    = 19
	opStatx    = 21
	opSplice   = 30
	opMkdirAt  = 37
	opConnect  = 16
	opAccept   = 13
	opSend     = 26
	opRecv     = 27
	opShutdown = 34

	ioringEnterGetevents = 1 << 0

	sqeSize = 64
	cqeSize = 16
)

// io_uring_sqe, 64 bytes. Field meaning is op-dependent exactly as in the
// kernel ABI (several fields are reused via union across opcodes).
type ioUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64 // offset, or addrlen (connect), or statxbuf ptr (statx), or off_out (splice)
	addr        uint64 // buffer/path ptr, or splice_off_in (splice)
	len         uint32 // byte count, or mode (openat/mkdirat), or mask (statx)
	opcodeFlags uint32 // open_flags / statx_flags / msg_flags / splice_flags
	userData    uint64
	bufIG       uint16
	personality uint16
	spliceFdIn  int32
	_pad2       [2]uint64
}

// io_uring_cqe, 16 bytes.
type ioUringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ioUringSQRingOffsets
	cqOff        ioUringCQRingOffsets
}

type ioUringSQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

type ioUringCQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

// RingManager wraps one memory-mapped io_uring instance. It is not safe for
// concurrent use; each Worker (§4.G) owns exactly one.
type RingManager struct {
	fd        int
	sqEntries uint32
	cqEntries uint32

	sqHead    *uint32
	sqTail    *uint32
	sqMask    *uint32
	sqArray   unsafe.Pointer
	sqes      unsafe.Pointer
	sqRingMem []byte

	cqHead    *uint32
	cqTail    *uint32
	cqMask    *uint32
	cqes      unsafe.Pointer
	cqRingMem []byte

	sqesMem []byte

	localTail uint32 // next slot to fill; published to the kernel on Submit
	pending   uint32 // SQEs prepared since the last Submit

	// pinned keeps buffers and path bytes referenced by an in-flight SQE
	// alive until its completion is reaped; indexed by SQE slot.
	pinned []any
}

// CompletionFunc receives one reaped completion: the owning context handle
// and the raw result code (negative on error, byte count or fd otherwise).
type CompletionFunc func(h Handle, res int32)

// NewRingManager creates and maps an io_uring instance of the given depth.
func NewRingManager(depth uint32) (*RingManager, error) {
	if !KernelSupportsIOURing() {
		return nil, fmt.Errorf("io_uring: kernel does not support it (need >= 5.6)")
	}

	var params ioUringParams
	fd, _, errno := syscall.Syscall(
		unix.SYS_IO_URING_SETUP,
		uintptr(depth),
		uintptr(unsafe.Pointer(&params)),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &RingManager{
		fd:        int(fd),
		sqEntries: params.sqEntries,
		cqEntries: params.cqEntries,
		pinned:    make([]any, params.sqEntries),
	}

	if err := r.mmap(&params); err != nil {
		_ = syscall.Close(r.fd)
		return nil, err
	}
	r.localTail = *r.sqTail

	return r, nil
}

func (r *RingManager) mmap(params *ioUringParams) error {
	sqRingSize := uintptr(params.sqOff.array) + uintptr(params.sqEntries)*4
	sqMem, err := syscall.Mmap(r.fd, 0, int(sqRingSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	r.sqRingMem = sqMem

	base := unsafe.Pointer(&sqMem[0])
	r.sqHead = (*uint32)(unsafe.Add(base, params.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(base, params.sqOff.tail))
	r.sqMask = (*uint32)(unsafe.Add(base, params.sqOff.ringMask))
	r.sqArray = unsafe.Add(base, params.sqOff.array)

	sqesMem, err := syscall.Mmap(r.fd, 0x10000000, int(uintptr(params.sqEntries)*sqeSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		_ = syscall.Munmap(r.sqRingMem)
		return fmt.Errorf("mmap sqes: %w", err)
	}
	r.sqesMem = sqesMem
	r.sqes = unsafe.Pointer(&sqesMem[0])

	cqRingSize := uintptr(params.cqOff.cqes) + uintptr(params.cqEntries)*cqeSize
	cqMem, err := syscall.Mmap(r.fd, 0x8000000, int(cqRingSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		_ = syscall.Munmap(r.sqesMem)
		_ = syscall.Munmap(r.sqRingMem)
		return fmt.Errorf("mmap cq ring: %w", err)
	}
	r.cqRingMem = cqMem

	cqBase := unsafe.Pointer(&cqMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, params.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, params.cqOff.tail))
	r.cqMask = (*uint32)(unsafe.Add(cqBase, params.cqOff.ringMask))
	r.cqes = unsafe.Add(cqBase, params.cqOff.cqes)

	return nil
}

// Close unmaps the ring and closes its fd.
func (r *RingManager) Close() error {
	var firstErr error
	if r.cqRingMem != nil {
		if err := syscall.Munmap(r.cqRingMem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.sqesMem != nil {
		if err := syscall.Munmap(r.sqesMem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.sqRingMem != nil {
		if err := syscall.Munmap(r.sqRingMem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := syscall.Close(r.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Depth reports the ring's submission queue depth.
func (r *RingManager) Depth() uint32 { return r.sqEntries }

// HasSQESpace reports whether at least one more SQE can be prepared without
// an implicit submit.
func (r *RingManager) HasSQESpace() bool {
	return r.pending < r.sqEntries
}

// nextSQE returns the next free slot, submitting once to make room if the
// queue is momentarily full. A second failure is a fatal programming error
// per §4.D — the caller never prepares faster than it drains completions.
func (r *RingManager) nextSQE() (*ioUringSQE, uint32, error) {
	if !r.HasSQESpace() {
		if err := r.Submit(); err != nil {
			return nil, 0, err
		}
		if !r.HasSQESpace() {
			panic("io_uring: submission queue is full after implicit submit")
		}
	}

	idx := r.localTail & *r.sqMask
	sqe := (*ioUringSQE)(unsafe.Add(r.sqes, uintptr(idx)*sqeSize))
	*sqe = ioUringSQE{}

	sqArr := (*uint32)(unsafe.Add(r.sqArray, uintptr(idx)*4))
	*sqArr = idx

	r.localTail++
	r.pending++
	return sqe, idx, nil
}

func (r *RingManager) pin(idx uint32, v any) {
	r.pinned[idx] = v
}

// PrepareRead queues a read of len(buf) bytes from fd at offset, tagged h.
func (r *RingManager) PrepareRead(h Handle, fd int, buf []byte, offset int64) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opRead
	sqe.fd = int32(fd)
	sqe.off = uint64(offset)
	if len(buf) > 0 {
		sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	sqe.len = uint32(len(buf))
	sqe.userData = uint64(h)
	r.pin(idx, buf)
	return nil
}

// PrepareWrite queues a write of buf to fd at offset, tagged h.
func (r *RingManager) PrepareWrite(h Handle, fd int, buf []byte, offset int64) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opWrite
	sqe.fd = int32(fd)
	sqe.off = uint64(offset)
	if len(buf) > 0 {
		sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	sqe.len = uint32(len(buf))
	sqe.userData = uint64(h)
	r.pin(idx, buf)
	return nil
}

// PrepareOpenAt queues an openat(dirfd, path, flags, mode), tagged h. The
// completion result is the new fd.
func (r *RingManager) PrepareOpenAt(h Handle, dirfd int, path string, flags int, mode uint32) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	pathBytes, perr := unix.BytePtrFromString(path)
	if perr != nil {
		return perr
	}
	sqe.opcode = opOpenAt
	sqe.fd = int32(dirfd)
	sqe.addr = uint64(uintptr(unsafe.Pointer(pathBytes)))
	sqe.len = mode
	sqe.opcodeFlags = uint32(flags)
	sqe.userData = uint64(h)
	r.pin(idx, pathBytes)
	return nil
}

// PrepareStatx queues a statx(fd, "", flags, mask, buf), tagged h; flags are
// passed as given, so statting fd itself needs AT_EMPTY_PATH in them.
func (r *RingManager) PrepareStatx(h Handle, fd int, flags int, mask uint32, buf *unix.Statx_t) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	empty, _ := unix.BytePtrFromString("")
	sqe.opcode = opStatx
	sqe.fd = int32(fd)
	sqe.addr = uint64(uintptr(unsafe.Pointer(empty)))
	sqe.off = uint64(uintptr(unsafe.Pointer(buf)))
	sqe.len = mask
	sqe.opcodeFlags = uint32(flags)
	sqe.userData = uint64(h)
	r.pin(idx, []any{empty, buf})
	return nil
}

// PrepareClose queues a close(fd), tagged h.
func (r *RingManager) PrepareClose(h Handle, fd int) error {
	sqe, _, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opClose
	sqe.fd = int32(fd)
	sqe.userData = uint64(h)
	return nil
}

// PrepareSplice queues splice(fdIn, offIn, fdOut, offOut, n, flags), tagged h.
// Per §9's resolved open question, pass offIn/offOut as -1 for the pipe end
// of the splice; the non-negative side names the file-side read or write position.
func (r *RingManager) PrepareSplice(h Handle, fdIn int, offIn int64, fdOut int, offOut int64, n int, flags uint32) error {
	sqe, _, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opSplice
	sqe.fd = int32(fdOut)
	sqe.off = uint64(offOut)
	sqe.addr = uint64(offIn)
	sqe.len = uint32(n)
	sqe.opcodeFlags = flags
	sqe.spliceFdIn = int32(fdIn)
	sqe.userData = uint64(h)
	return nil
}

// PrepareMkdirAt queues a mkdirat(dirfd, path, mode), tagged h.
func (r *RingManager) PrepareMkdirAt(h Handle, dirfd int, path string, mode uint32) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	pathBytes, perr := unix.BytePtrFromString(path)
	if perr != nil {
		return perr
	}
	sqe.opcode = opMkdirAt
	sqe.fd = int32(dirfd)
	sqe.addr = uint64(uintptr(unsafe.Pointer(pathBytes)))
	sqe.len = mode
	sqe.userData = uint64(h)
	r.pin(idx, pathBytes)
	return nil
}

// PrepareConnect queues a connect(fd, addr), tagged h.
func (r *RingManager) PrepareConnect(h Handle, fd int, rawAddr unsafe.Pointer, addrLen uint32) error {
	sqe, _, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opConnect
	sqe.fd = int32(fd)
	sqe.addr = uint64(uintptr(rawAddr))
	sqe.off = uint64(addrLen)
	sqe.userData = uint64(h)
	return nil
}

// PrepareAccept queues an accept(fd), tagged h. The completion result is the
// new connected fd.
func (r *RingManager) PrepareAccept(h Handle, fd int) error {
	sqe, _, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opAccept
	sqe.fd = int32(fd)
	sqe.userData = uint64(h)
	return nil
}

// PrepareSend queues a send(fd, buf, flags), tagged h.
func (r *RingManager) PrepareSend(h Handle, fd int, buf []byte, flags int) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opSend
	sqe.fd = int32(fd)
	if len(buf) > 0 {
		sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	sqe.len = uint32(len(buf))
	sqe.opcodeFlags = uint32(flags)
	sqe.userData = uint64(h)
	r.pin(idx, buf)
	return nil
}

// PrepareRecv queues a recv(fd, buf, flags), tagged h.
func (r *RingManager) PrepareRecv(h Handle, fd int, buf []byte, flags int) error {
	sqe, idx, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opRecv
	sqe.fd = int32(fd)
	if len(buf) > 0 {
		sqe.addr = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	sqe.len = uint32(len(buf))
	sqe.opcodeFlags = uint32(flags)
	sqe.userData = uint64(h)
	r.pin(idx, buf)
	return nil
}

// PrepareShutdown queues a shutdown(fd, how), tagged h.
func (r *RingManager) PrepareShutdown(h Handle, fd int, how int) error {
	sqe, _, err := r.nextSQE()
	if err != nil {
		return err
	}
	sqe.opcode = opShutdown
	sqe.fd = int32(fd)
	sqe.len = uint32(how)
	sqe.userData = uint64(h)
	return nil
}

// Submit publishes all prepared SQEs to the kernel without waiting for any
// completion.
func (r *RingManager) Submit() error {
	if r.pending == 0 {
		return nil
	}
	*r.sqTail = r.localTail
	toSubmit := r.pending
	_, _, errno := syscall.Syscall6(
		unix.SYS_IO_URING_ENTER,
		uintptr(r.fd),
		uintptr(toSubmit),
		0,
		0,
		0, 0,
	)
	if errno != 0 {
		return fmt.Errorf("io_uring_enter(submit): %w", errno)
	}
	r.pending = 0
	return nil
}

// WaitOne submits anything pending, blocks for exactly one completion, and
// returns its context handle and result code.
func (r *RingManager) WaitOne() (Handle, int32, error) {
	toSubmit := r.pending
	if toSubmit > 0 {
		*r.sqTail = r.localTail
	}
	_, _, errno := syscall.Syscall6(
		unix.SYS_IO_URING_ENTER,
		uintptr(r.fd),
		uintptr(toSubmit),
		1,
		uintptr(ioringEnterGetevents),
		0, 0,
	)
	if errno != 0 {
		return 0, 0, fmt.Errorf("io_uring_enter(wait): %w", errno)
	}
	r.pending = 0

	h, res, ok := r.popCQE()
	if !ok {
		return 0, 0, fmt.Errorf("io_uring: wait returned but no completion ready")
	}
	return h, res, nil
}

// ProcessCompletions drains every completion currently ready without
// blocking, invoking cb for each.
func (r *RingManager) ProcessCompletions(cb CompletionFunc) {
	for {
		h, res, ok := r.popCQE()
		if !ok {
			return
		}
		cb(h, res)
	}
}

// WaitAndProcess submits anything pending, blocks for at least one
// completion, then drains every other completion that is also ready.
func (r *RingManager) WaitAndProcess(cb CompletionFunc) error {
	h, res, err := r.WaitOne()
	if err != nil {
		return err
	}
	cb(h, res)
	r.ProcessCompletions(cb)
	return nil
}

func (r *RingManager) popCQE() (Handle, int32, bool) {
	head := *r.cqHead
	if head == *r.cqTail {
		return 0, 0, false
	}
	idx := head & *r.cqMask
	cqe := (*ioUringCQE)(unsafe.Add(r.cqes, uintptr(idx)*cqeSize))
	h := Handle(cqe.userData)
	res := cqe.res
	*r.cqHead = head + 1
	return h, res, true
}

// KernelSupportsIOURing reports whether the running kernel is >= 5.6.
func KernelSupportsIOURing() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}

	release := unix.ByteSliceToString(uname.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}

	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx > 0 {
		minorStr = minorStr[:idx]
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return false
	}

	return major > 5 || (major == 5 && minor >= 6)
}
