package sync

import "github.com/forgebound/ledgercore/wire"

const (
	typeIDSnapshotsRequest  wire.TypeID = 40
	typeIDSnapshotsResponse wire.TypeID = 41
	typeIDChunkRequest      wire.TypeID = 42
	typeIDChunkResponse     wire.TypeID = 43
)

type snapshotsRequestMsg struct {
	MinHeight int64
}

func (m *snapshotsRequestMsg) TypeID() wire.TypeID { return typeIDSnapshotsRequest }

func (m *snapshotsRequestMsg) MarshalWire(w *wire.Writer) { w.WriteUint64(uint64(m.MinHeight)) }

func (m *snapshotsRequestMsg) UnmarshalWire(r *wire.Reader) error {
	h, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.MinHeight = int64(h)
	return nil
}

// snapshotMeta describes one snapshot a peer is offering, without its
// chunk contents.
type snapshotMeta struct {
	Height    int64
	Hash      []byte
	Chunks    int32
	AppHash   []byte
	CreatedAt int64
}

type snapshotsResponseMsg struct {
	Snapshots []snapshotMeta
}

func (m *snapshotsResponseMsg) TypeID() wire.TypeID { return typeIDSnapshotsResponse }

func (m *snapshotsResponseMsg) MarshalWire(w *wire.Writer) {
	w.WriteUint32(uint32(len(m.Snapshots)))
	for _, s := range m.Snapshots {
		w.WriteUint64(uint64(s.Height))
		w.WriteBytes(s.Hash)
		w.WriteUint32(uint32(s.Chunks))
		w.WriteBytes(s.AppHash)
		w.WriteUint64(uint64(s.CreatedAt))
	}
}

func (m *snapshotsResponseMsg) UnmarshalWire(r *wire.Reader) error {
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	snapshots := make([]snapshotMeta, 0, count)
	for i := uint32(0); i < count; i++ {
		height, err := r.ReadUint64()
		if err != nil {
			return err
		}
		hash, err := r.ReadBytes()
		if err != nil {
			return err
		}
		chunks, err := r.ReadUint32()
		if err != nil {
			return err
		}
		appHash, err := r.ReadBytes()
		if err != nil {
			return err
		}
		createdAt, err := r.ReadUint64()
		if err != nil {
			return err
		}
		snapshots = append(snapshots, snapshotMeta{
			Height:    int64(height),
			Hash:      hash,
			Chunks:    int32(chunks),
			AppHash:   appHash,
			CreatedAt: int64(createdAt),
		})
	}
	m.Snapshots = snapshots
	return nil
}

type chunkRequestMsg struct {
	Hash  []byte
	Index int32
}

func (m *chunkRequestMsg) TypeID() wire.TypeID { return typeIDChunkRequest }

func (m *chunkRequestMsg) MarshalWire(w *wire.Writer) {
	w.WriteBytes(m.Hash)
	w.WriteUint32(uint32(m.Index))
}

func (m *chunkRequestMsg) UnmarshalWire(r *wire.Reader) error {
	hash, err := r.ReadBytes()
	if err != nil {
		return err
	}
	idx, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.Hash = hash
	m.Index = int32(idx)
	return nil
}

type chunkResponseMsg struct {
	Hash      []byte
	Index     int32
	Data      []byte
	ChunkHash []byte
}

func (m *chunkResponseMsg) TypeID() wire.TypeID { return typeIDChunkResponse }

func (m *chunkResponseMsg) MarshalWire(w *wire.Writer) {
	w.WriteBytes(m.Hash)
	w.WriteUint32(uint32(m.Index))
	w.WriteBytes(m.Data)
	w.WriteBytes(m.ChunkHash)
}

func (m *chunkResponseMsg) UnmarshalWire(r *wire.Reader) error {
	hash, err := r.ReadBytes()
	if err != nil {
		return err
	}
	idx, err := r.ReadUint32()
	if err != nil {
		return err
	}
	data, err := r.ReadBytes()
	if err != nil {
		return err
	}
	chunkHash, err := r.ReadBytes()
	if err != nil {
		return err
	}
	m.Hash = hash
	m.Index = int32(idx)
	m.Data = data
	m.ChunkHash = chunkHash
	return nil
}

var stateSyncDecodeFactory = map[wire.TypeID]func() wire.Unmarshaler{
	typeIDSnapshotsRequest:  func() wire.Unmarshaler { return &snapshotsRequestMsg{} },
	typeIDSnapshotsResponse: func() wire.Unmarshaler { return &snapshotsResponseMsg{} },
	typeIDChunkRequest:      func() wire.Unmarshaler { return &chunkRequestMsg{} },
	typeIDChunkResponse:     func() wire.Unmarshaler { return &chunkResponseMsg{} },
}
