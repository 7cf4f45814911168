package consensus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// WALMessageType identifies the kind of record stored in the write-ahead
// log.
type WALMessageType uint8

const (
	WALProposal WALMessageType = iota + 1
	WALVote
	WALEndHeight
)

// WALMessage is one write-ahead log record: either a proposal this node
// signed, a vote it signed, or an end-of-height marker written once a
// block commits.
type WALMessage struct {
	Type     WALMessageType
	Height   types.Height
	Round    int32
	Proposal *types.Proposal
	Vote     *types.Vote
}

// WAL is the write-ahead log the engine appends to before acting on its
// own signed messages, so a crash between "signed" and "broadcast" cannot
// silently equivocate on restart. Messages received from peers are not
// logged.
type WAL interface {
	Write(msg WALMessage) error
	SearchForEndHeight(height types.Height) (WALReader, error)
	Close() error
}

// WALReader replays messages recorded after a given point in the log.
type WALReader interface {
	Next() (*WALMessage, error)
}

// FileWAL is a WAL backed by an append-only file of length-prefixed wire
// records written back to back.
type FileWAL struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// OpenFileWAL opens (creating if necessary) a WAL file at path.
func OpenFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	return &FileWAL{file: f, w: bufio.NewWriter(f)}, nil
}

// Write appends msg to the log and flushes it to the OS before returning,
// so the record is handed to the OS before the caller's subsequent
// broadcast. The file is not fsynced.
func (l *FileWAL) Write(msg WALMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	encoded := encodeWALMessage(msg)
	var lenBuf [4]byte
	n := uint32(len(encoded))
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	if _, err := l.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wal write length: %w", err)
	}
	if _, err := l.w.Write(encoded); err != nil {
		return fmt.Errorf("wal write record: %w", err)
	}
	return l.w.Flush()
}

// SearchForEndHeight scans from the start of the log for the last
// WALEndHeight marker of a height below height, and returns a reader
// positioned just after it (or at the start of the log if there is none)
// so the caller can replay the in-progress height.
func (l *FileWAL) SearchForEndHeight(height types.Height) (WALReader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(l.file)
	var records []WALMessage
	startAt := 0
	for {
		msg, err := readWALRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wal scan: %w", err)
		}
		records = append(records, *msg)
		if msg.Type == WALEndHeight && msg.Height < height {
			startAt = len(records)
		}
	}
	return &sliceWALReader{records: records[startAt:]}, nil
}

// Close flushes and closes the underlying file.
func (l *FileWAL) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

type sliceWALReader struct {
	records []WALMessage
	pos     int
}

func (r *sliceWALReader) Next() (*WALMessage, error) {
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	msg := r.records[r.pos]
	r.pos++
	return &msg, nil
}

func readWALRecord(r *bufio.Reader) (*WALMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := uint32(lenBuf[0])<<24 | uint32(lenBuf[1])<<16 | uint32(lenBuf[2])<<8 | uint32(lenBuf[3])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeWALMessage(body)
}

// walEnvelope adapts WALMessage to the wire.Marshaler convention so it can
// share the codec's pooled Writer/Reader with peer protocol messages.
type walEnvelope struct {
	msg WALMessage
}

func (e *walEnvelope) TypeID() wire.TypeID { return wire.TypeID(e.msg.Type) }

func (e *walEnvelope) MarshalWire(w *wire.Writer) {
	w.WriteUint64(uint64(e.msg.Height))
	w.WriteUint32(uint32(e.msg.Round))
	switch e.msg.Type {
	case WALProposal:
		codec.MarshalProposal(w, e.msg.Proposal)
	case WALVote:
		codec.MarshalVote(w, e.msg.Vote)
	}
}

func encodeWALMessage(msg WALMessage) []byte {
	return wire.Encode(&walEnvelope{msg: msg})
}

func decodeWALMessage(data []byte) (*WALMessage, error) {
	if len(data) < 1 {
		return nil, wire.ErrShortRead
	}
	msgType := WALMessageType(data[0])
	r := wire.NewReader(data[1:])
	height, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	round, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := &WALMessage{Type: msgType, Height: types.Height(height), Round: int32(round)}
	switch msgType {
	case WALProposal:
		out.Proposal, err = codec.UnmarshalProposal(r)
	case WALVote:
		out.Vote, err = codec.UnmarshalVote(r)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
