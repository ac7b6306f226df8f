package wirehttp

import (
	"bufio"
	"sync"
)

// workerBuffers holds the scratch buffers a single connection worker
// reuses across every request it handles on that connection, and across
// connections via a sync.Pool (spec.md §3: "WorkerBuffers: reusable
// scratch buffers, pooled across connections to bound allocation under
// load"). rawBuf backs the preamble FSM's chunked raw reads; writeBuf, if
// ResponseBufferSize > 0, batches outgoing response bytes into fewer
// syscalls.
type workerBuffers struct {
	rawBuf   []byte
	writeBuf *bufio.Writer
}

type bufferPool struct {
	pool               sync.Pool
	readSize, writeSize int
}

func newBufferPool(readSize, writeSize int) *bufferPool {
	if readSize <= 0 {
		readSize = DefaultRequestBufferSize
	}
	bp := &bufferPool{readSize: readSize, writeSize: writeSize}
	bp.pool.New = func() interface{} {
		wb := &workerBuffers{rawBuf: make([]byte, bp.readSize)}
		if bp.writeSize > 0 {
			wb.writeBuf = bufio.NewWriterSize(nil, bp.writeSize)
		}
		return wb
	}
	return bp
}

func (bp *bufferPool) get() *workerBuffers {
	return bp.pool.Get().(*workerBuffers)
}

func (bp *bufferPool) put(wb *workerBuffers) {
	if wb.writeBuf != nil {
		wb.writeBuf.Reset(nil)
	}
	bp.pool.Put(wb)
}
