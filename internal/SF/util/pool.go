package util

import "sync"

// ByteBufferPool is a pool of reusable byte slices, sized for typical
// serialized records.
var ByteBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 256)
		return &buf
	},
}

// GetByteBuffer retrieves an empty byte buffer from the pool.
func GetByteBuffer() *[]byte {
	bp := ByteBufferPool.Get().(*[]byte)
	*bp = (*bp)[:0]
	return bp
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf *[]byte) {
	if buf != nil {
		ByteBufferPool.Put(buf)
	}
}
