// Package storage keeps captured lines in memory, optionally snappy compressed in
// fixed size blocks.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
)

// BlockSize is the number of records compressed together.
const BlockSize = 400

var ErrIndexOutOfRange = errors.New("index out of range")

// Storage is an append-only indexed string store.
type Storage interface {
	Add(value string) int
	Count() int
	Get(i int) (string, error)
	Empty() bool
	Clear()
}

// VectorStorage keeps every record uncompressed.
type VectorStorage struct {
	mu      sync.RWMutex
	records []string
}

var _ Storage = &VectorStorage{}

func NewVectorStorage() *VectorStorage {
	return &VectorStorage{}
}

func (v *VectorStorage) Add(value string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.records = append(v.records, value)
	return len(v.records) - 1
}

func (v *VectorStorage) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

func (v *VectorStorage) Get(i int) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if i < 0 || i >= len(v.records) {
		return "", fmt.Errorf("record %d: %w", i, ErrIndexOutOfRange)
	}
	return v.records[i], nil
}

func (v *VectorStorage) Empty() bool {
	return v.Count() == 0
}

func (v *VectorStorage) Clear() {
	v.mu.Lock()
	v.records = nil
	v.mu.Unlock()
}

// SnappyStorage groups records in blocks of BlockSize. Completed blocks are compressed;
// the block being written stays uncompressed. One decompressed block is cached for
// reads, so sequential access decompresses each block once.
type SnappyStorage struct {
	mu        sync.Mutex
	blocks    [][]byte
	writeList []string
	readIndex int
	readList  []string
}

var _ Storage = &SnappyStorage{}

func NewSnappyStorage() *SnappyStorage {
	return &SnappyStorage{readIndex: -1}
}

func (s *SnappyStorage) Add(value string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeList = append(s.writeList, value)
	index := len(s.blocks)*BlockSize + len(s.writeList) - 1
	if len(s.writeList) == BlockSize {
		s.blocks = append(s.blocks, Compress(s.writeList))
		s.writeList = nil
	}
	return index
}

func (s *SnappyStorage) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)*BlockSize + len(s.writeList)
}

func (s *SnappyStorage) Empty() bool {
	return s.Count() == 0
}

func (s *SnappyStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = nil
	s.writeList = nil
	s.readIndex = -1
	s.readList = nil
}

func (s *SnappyStorage) Get(i int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.blocks)*BlockSize + len(s.writeList)
	if i < 0 || i >= count {
		return "", fmt.Errorf("record %d of %d: %w", i, count, ErrIndexOutOfRange)
	}

	block, offset := i/BlockSize, i%BlockSize
	if block == len(s.blocks) {
		return s.writeList[offset], nil
	}
	if block != s.readIndex {
		list, err := Decompress(s.blocks[block])
		if err != nil {
			return "", fmt.Errorf("failed to decompress block %d: %w", block, err)
		}
		s.readList = list
		s.readIndex = block
	}
	return s.readList[offset], nil
}

// Compress packs records as uvarint length prefixed strings and snappy encodes them.
func Compress(records []string) []byte {
	var raw []byte
	for _, r := range records {
		raw = binary.AppendUvarint(raw, uint64(len(r)))
		raw = append(raw, r...)
	}
	return snappy.Encode(nil, raw)
}

// Decompress reverses Compress.
func Decompress(block []byte) ([]string, error) {
	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return nil, err
	}
	var records []string
	for len(raw) > 0 {
		n, size := binary.Uvarint(raw)
		if size <= 0 || uint64(len(raw)-size) < n {
			return nil, errors.New("corrupt record length")
		}
		raw = raw[size:]
		records = append(records, string(raw[:n]))
		raw = raw[n:]
	}
	return records, nil
}
