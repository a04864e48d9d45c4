package classfile

import "fmt"

type FrameKind uint8

const (
	SameFrame FrameKind = iota
	SameLocals1StackItemFrame
	SameLocals1StackItemFrameExtended
	ChopFrame
	SameFrameExtended
	AppendFrame
	FullFrame
)

var frameKindNames = [...]string{
	SameFrame:                         "same",
	SameLocals1StackItemFrame:         "same_locals_1_stack_item",
	SameLocals1StackItemFrameExtended: "same_locals_1_stack_item_extended",
	ChopFrame:                         "chop",
	SameFrameExtended:                 "same_frame_extended",
	AppendFrame:                       "append",
	FullFrame:                         "full_frame",
}

func (k FrameKind) String() string {
	if int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return fmt.Sprintf("FrameKind(%d)", uint8(k))
}

type VerificationTag uint8

const (
	ItemTop               VerificationTag = 0
	ItemInteger           VerificationTag = 1
	ItemFloat             VerificationTag = 2
	ItemDouble            VerificationTag = 3
	ItemLong              VerificationTag = 4
	ItemNull              VerificationTag = 5
	ItemUninitializedThis VerificationTag = 6
	ItemObject            VerificationTag = 7
	ItemUninitialized     VerificationTag = 8
)

// VerificationTypeInfo is one local or stack entry of a frame. CPoolIndex is
// set for ItemObject, Offset for ItemUninitialized.
type VerificationTypeInfo struct {
	Tag        VerificationTag
	CPoolIndex uint16
	Offset     uint16
}

// StackMapFrame is a flattened stack map frame. Which fields are
// meaningful depends on Kind: Stack holds the single item of the
// same_locals_1_stack_item variants, Locals the appended locals of an
// append frame, ChopCount the locals removed by a chop frame.
type StackMapFrame struct {
	FrameType   uint8
	Kind        FrameKind
	OffsetDelta uint16
	ChopCount   int
	Locals      []VerificationTypeInfo
	Stack       []VerificationTypeInfo
}

type StackMapTableAttribute struct {
	Entries []StackMapFrame
}

func readStackMapTable(p *parser, r *ByteReader) (any, error) {
	count := r.ReadU2()
	smt := &StackMapTableAttribute{Entries: make([]StackMapFrame, 0, count)}
	for i := uint16(0); i < count; i++ {
		frame, err := readStackMapFrame(p, r)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		smt.Entries = append(smt.Entries, frame)
	}
	return smt, r.Err()
}

func readStackMapFrame(p *parser, r *ByteReader) (StackMapFrame, error) {
	frameType := r.ReadU1()
	if err := r.Err(); err != nil {
		return StackMapFrame{}, err
	}
	frame := StackMapFrame{FrameType: frameType}

	var err error
	readItems := func(n int) []VerificationTypeInfo {
		items := make([]VerificationTypeInfo, 0, n)
		for k := 0; k < n && err == nil; k++ {
			var item VerificationTypeInfo
			item, err = readVerificationTypeInfo(p, r)
			items = append(items, item)
		}
		return items
	}

	switch {
	case frameType <= 63:
		frame.Kind = SameFrame
		frame.OffsetDelta = uint16(frameType)
	case frameType <= 127:
		frame.Kind = SameLocals1StackItemFrame
		frame.OffsetDelta = uint16(frameType - 64)
		frame.Stack = readItems(1)
	case frameType <= 246:
		return frame, formatError(nil, "reserved stack map frame type %d", frameType)
	case frameType == 247:
		frame.Kind = SameLocals1StackItemFrameExtended
		frame.OffsetDelta = r.ReadU2()
		frame.Stack = readItems(1)
	case frameType <= 250:
		frame.Kind = ChopFrame
		frame.OffsetDelta = r.ReadU2()
		frame.ChopCount = 251 - int(frameType)
	case frameType == 251:
		frame.Kind = SameFrameExtended
		frame.OffsetDelta = r.ReadU2()
	case frameType <= 254:
		frame.Kind = AppendFrame
		frame.OffsetDelta = r.ReadU2()
		frame.Locals = readItems(int(frameType) - 251)
	default:
		frame.Kind = FullFrame
		frame.OffsetDelta = r.ReadU2()
		frame.Locals = readItems(int(r.ReadU2()))
		if err == nil {
			frame.Stack = readItems(int(r.ReadU2()))
		}
	}
	if err != nil {
		return frame, err
	}
	return frame, r.Err()
}

func readVerificationTypeInfo(p *parser, r *ByteReader) (VerificationTypeInfo, error) {
	item := VerificationTypeInfo{Tag: VerificationTag(r.ReadU1())}
	if err := r.Err(); err != nil {
		return item, err
	}
	switch item.Tag {
	case ItemTop, ItemInteger, ItemFloat, ItemDouble, ItemLong, ItemNull, ItemUninitializedThis:
	case ItemObject:
		item.CPoolIndex = r.ReadU2()
		if err := r.Err(); err != nil {
			return item, err
		}
		if _, err := p.pool.ClassAt(item.CPoolIndex); err != nil {
			return item, formatError(err, "invalid object verification type #%d", item.CPoolIndex)
		}
	case ItemUninitialized:
		item.Offset = r.ReadU2()
	default:
		return item, formatError(nil, "invalid verification type tag %d", item.Tag)
	}
	return item, r.Err()
}
