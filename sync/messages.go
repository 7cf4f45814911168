package sync

import (
	"github.com/forgebound/ledgercore/codec"
	"github.com/forgebound/ledgercore/types"
	"github.com/forgebound/ledgercore/wire"
)

// Type IDs for the block-sync wire protocol: requesting and serving
// header/body ranges, plus the lightweight height announcement peers
// exchange so the synchronizer knows who is ahead.
const (
	typeIDGetHeaders    wire.TypeID = 20
	typeIDHeaders       wire.TypeID = 21
	typeIDGetBodies     wire.TypeID = 22
	typeIDBodies        wire.TypeID = 23
	typeIDNewBlockHeight wire.TypeID = 24
)

type getHeadersMsg struct {
	From  types.Height
	Count int32
}

func (m *getHeadersMsg) TypeID() wire.TypeID { return typeIDGetHeaders }

func (m *getHeadersMsg) MarshalWire(w *wire.Writer) {
	w.WriteUint64(uint64(m.From))
	w.WriteUint32(uint32(m.Count))
}

func (m *getHeadersMsg) UnmarshalWire(r *wire.Reader) error {
	from, err := r.ReadUint64()
	if err != nil {
		return err
	}
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	m.From = types.Height(from)
	m.Count = int32(count)
	return nil
}

type headersMsg struct {
	Headers []*types.BlockHeader
}

func (m *headersMsg) TypeID() wire.TypeID { return typeIDHeaders }

func (m *headersMsg) MarshalWire(w *wire.Writer) {
	w.WriteUint32(uint32(len(m.Headers)))
	for _, h := range m.Headers {
		codec.MarshalBlockHeader(w, h)
	}
}

func (m *headersMsg) UnmarshalWire(r *wire.Reader) error {
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	headers := make([]*types.BlockHeader, 0, count)
	for i := uint32(0); i < count; i++ {
		h, err := codec.UnmarshalBlockHeader(r)
		if err != nil {
			return err
		}
		headers = append(headers, h)
	}
	m.Headers = headers
	return nil
}

type getBodiesMsg struct {
	Heights []types.Height
}

func (m *getBodiesMsg) TypeID() wire.TypeID { return typeIDGetBodies }

func (m *getBodiesMsg) MarshalWire(w *wire.Writer) {
	w.WriteUint32(uint32(len(m.Heights)))
	for _, h := range m.Heights {
		w.WriteUint64(uint64(h))
	}
}

func (m *getBodiesMsg) UnmarshalWire(r *wire.Reader) error {
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	heights := make([]types.Height, 0, count)
	for i := uint32(0); i < count; i++ {
		h, err := r.ReadUint64()
		if err != nil {
			return err
		}
		heights = append(heights, types.Height(h))
	}
	m.Heights = heights
	return nil
}

type bodiesMsg struct {
	Bodies []*types.BlockBody
}

func (m *bodiesMsg) TypeID() wire.TypeID { return typeIDBodies }

func (m *bodiesMsg) MarshalWire(w *wire.Writer) {
	w.WriteUint32(uint32(len(m.Bodies)))
	for _, b := range m.Bodies {
		codec.MarshalBlockBody(w, b)
	}
}

func (m *bodiesMsg) UnmarshalWire(r *wire.Reader) error {
	count, err := r.ReadUint32()
	if err != nil {
		return err
	}
	bodies := make([]*types.BlockBody, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := codec.UnmarshalBlockBody(r)
		if err != nil {
			return err
		}
		bodies = append(bodies, b)
	}
	m.Bodies = bodies
	return nil
}

// newBlockHeightMsg is pushed (not requested) by a peer whenever its tip
// advances, so the synchronizer can compute targetHeight without polling.
type newBlockHeightMsg struct {
	Height types.Height
}

func (m *newBlockHeightMsg) TypeID() wire.TypeID { return typeIDNewBlockHeight }

func (m *newBlockHeightMsg) MarshalWire(w *wire.Writer) { w.WriteUint64(uint64(m.Height)) }

func (m *newBlockHeightMsg) UnmarshalWire(r *wire.Reader) error {
	height, err := r.ReadUint64()
	if err != nil {
		return err
	}
	m.Height = types.Height(height)
	return nil
}

var decodeFactory = map[wire.TypeID]func() wire.Unmarshaler{
	typeIDGetHeaders:     func() wire.Unmarshaler { return &getHeadersMsg{} },
	typeIDHeaders:        func() wire.Unmarshaler { return &headersMsg{} },
	typeIDGetBodies:      func() wire.Unmarshaler { return &getBodiesMsg{} },
	typeIDBodies:         func() wire.Unmarshaler { return &bodiesMsg{} },
	typeIDNewBlockHeight: func() wire.Unmarshaler { return &newBlockHeightMsg{} },
}
