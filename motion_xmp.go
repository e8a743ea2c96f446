package uhdrbake

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"
)

// MergeMode selects how an existing Container:Directory is treated when Motion Photo
// metadata is merged into a packet.
type MergeMode int

const (
	// MergeReplaceDirectory drops any existing directory and injects a fresh one.
	MergeReplaceDirectory MergeMode = iota
	// MergePreserveDirectory keeps existing items (Primary, GainMap), refreshes their
	// lengths and adds or replaces only the MotionPhoto item.
	MergePreserveDirectory
)

const (
	tagRDF         = "rdf:RDF"
	tagDescription = "rdf:Description"
	tagSeq         = "rdf:Seq"
	tagLi          = "rdf:li"
	tagDirectory   = "Container:Directory"
	tagItem        = "Container:Item"

	attrSemantic = "Item:Semantic"
	attrLength   = "Item:Length"
	attrMime     = "Item:Mime"
	attrPadding  = "Item:Padding"

	gcameraMotionPrefix = "GCamera:MotionPhoto"
)

var errNoRDF = errors.New("xmp packet has no rdf:RDF element")

// BuildMotionXMP returns an XMP packet (without the APP1 namespace prefix) carrying
// Motion Photo metadata. An existing packet is merged into; when it is empty, has no
// rdf:RDF or does not parse, a fresh packet is built.
//
// Calling it again on its own output yields a packet with a single MotionPhoto item.
func BuildMotionXMP(existing []byte, meta MotionMeta, mode MergeMode) []byte {
	if len(bytes.TrimSpace(existing)) > 0 {
		if merged, err := mergeMotionXMP(existing, meta, mode); err == nil {
			return merged
		}
	}
	return freshMotionXMP(meta)
}

type xmlFrame struct {
	name string
	// expanded is set when a self-closing element was rewritten as an open tag
	// and needs an explicit close.
	expanded bool
	// mark is the output offset where the element starts.
	mark int
	// dropIfEmpty marks a description left with namespace declarations only,
	// it is removed when nothing but whitespace follows its start tag at body.
	dropIfEmpty bool
	body        int
}

type motionMerger struct {
	meta MotionMeta
	mode MergeMode
	w    xmlWriter

	stack []xmlFrame

	// skipDepth is the stack depth of a dropped subtree root, 0 when not skipping.
	skipDepth int

	dirDepth    int
	seqInDir    bool
	primarySeen bool
	gainMapSeen bool
	motionSeen  bool
	dirFound    bool
	injected    bool
}

func mergeMotionXMP(existing []byte, meta MotionMeta, mode MergeMode) ([]byte, error) {
	m := motionMerger{meta: meta, mode: mode}
	dec := xml.NewDecoder(bytes.NewReader(existing))

	var prev int64
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		off := dec.InputOffset()
		raw := existing[prev:off]
		prev = off

		switch t := tok.(type) {
		case xml.StartElement:
			m.onStart(t, raw)
		case xml.EndElement:
			if err := m.onEnd(t, raw); err != nil {
				return nil, err
			}
		default:
			if m.skipDepth == 0 {
				m.w.raw(raw)
			}
		}
	}
	m.w.raw(existing[prev:])

	if !m.injected {
		return nil, errNoRDF
	}
	return m.w.bytes(), nil
}

func selfClosing(raw []byte) bool {
	return bytes.HasSuffix(bytes.TrimRight(raw, " \t\r\n"), []byte("/>"))
}

func (m *motionMerger) onStart(se xml.StartElement, raw []byte) {
	name := qname(se.Name)
	m.stack = append(m.stack, xmlFrame{name: name, mark: m.w.buf.Len()})
	depth := len(m.stack)

	if m.skipDepth > 0 {
		return
	}

	switch {
	case name == tagDirectory && m.dirDepth == 0:
		m.dirFound = true
		if m.mode == MergeReplaceDirectory {
			m.skipDepth = depth
			return
		}
		m.dirDepth = depth
		if selfClosing(raw) {
			m.w.start(name, attrsOf(se)...)
			m.stack[depth-1].expanded = true
			return
		}
	case name == tagSeq && m.dirDepth > 0 && depth == m.dirDepth+1:
		m.seqInDir = true
		if selfClosing(raw) {
			m.w.start(name, attrsOf(se)...)
			m.stack[depth-1].expanded = true
			return
		}
	case name == tagItem && m.dirDepth > 0:
		if m.rewriteItem(se, raw) {
			return
		}
	case name == tagDescription:
		if m.rewriteDescription(se, raw) {
			return
		}
	}
	m.w.raw(raw)
}

// rewriteItem keeps a single directory item per known semantic and refreshes its
// length. Primary goes first and GainMap ahead of MotionPhoto: missing ones are
// inserted in front of the current item.
func (m *motionMerger) rewriteItem(se xml.StartElement, raw []byte) bool {
	// An item wrapped in an rdf:li of the directory sequence is inserted before
	// and dropped together with its li.
	root := len(m.stack)
	if root == m.dirDepth+3 && m.stack[root-2].name == tagLi {
		root--
	}
	mark := m.stack[root-1].mark

	semantic, _ := attrValue(se, attrSemantic)
	if m.itemSeen(semantic) {
		m.w.buf.Truncate(mark)
		m.skipDepth = root
		return true
	}
	m.insertAt(mark, func() { m.writeMissing(semantic) })

	attrs := attrsOf(se)
	switch semantic {
	case semanticPrimary:
		m.primarySeen = true
		attrs = setAttr(attrs, attrLength, strconv.Itoa(m.meta.PrimaryLen))
	case semanticGainMap:
		m.gainMapSeen = true
		if m.meta.GainMapLen == 0 {
			return false
		}
		attrs = setAttr(attrs, attrLength, strconv.Itoa(m.meta.GainMapLen))
	case semanticMotionPhoto:
		m.motionSeen = true
		attrs = setAttr(attrs, attrMime, mimeMP4)
		attrs = setAttr(attrs, attrLength, strconv.Itoa(m.meta.VideoLen))
		attrs = setAttr(attrs, attrPadding, "0")
	default:
		return false
	}

	m.w.tag(qname(se.Name), attrs, selfClosing(raw))
	return true
}

func (m *motionMerger) itemSeen(semantic string) bool {
	switch semantic {
	case semanticPrimary:
		return m.primarySeen
	case semanticGainMap:
		return m.gainMapSeen
	case semanticMotionPhoto:
		return m.motionSeen
	}
	return false
}

// writeMissing writes the items that must precede an item with the given semantic,
// an empty semantic completes the directory.
func (m *motionMerger) writeMissing(before string) {
	if before != semanticPrimary && !m.primarySeen {
		writeContainerItem(&m.w, mimeJPEG, semanticPrimary, m.meta.PrimaryLen)
		m.primarySeen = true
	}
	if (before == semanticMotionPhoto || before == "") && !m.gainMapSeen && m.meta.GainMapLen > 0 {
		writeContainerItem(&m.w, mimeJPEG, semanticGainMap, m.meta.GainMapLen)
		m.gainMapSeen = true
	}
	if before == "" && !m.motionSeen {
		writeContainerItem(&m.w, mimeMP4, semanticMotionPhoto, m.meta.VideoLen)
		m.motionSeen = true
	}
}

// insertAt runs write with its output placed at mark, ahead of what follows it.
func (m *motionMerger) insertAt(mark int, write func()) {
	tail := append([]byte(nil), m.w.buf.Bytes()[mark:]...)
	m.w.buf.Truncate(mark)
	write()
	m.w.raw(tail)
}

// rewriteDescription drops stale GCamera:MotionPhoto* attributes.
func (m *motionMerger) rewriteDescription(se xml.StartElement, raw []byte) bool {
	attrs := make([]xmlAttr, 0, len(se.Attr))
	for _, a := range attrsOf(se) {
		if strings.HasPrefix(a.name, gcameraMotionPrefix) {
			continue
		}
		attrs = append(attrs, a)
	}
	if len(attrs) == len(se.Attr) {
		return false
	}
	m.w.tag(qname(se.Name), attrs, selfClosing(raw))

	frame := &m.stack[len(m.stack)-1]
	frame.dropIfEmpty = onlyDeclarations(attrs)
	frame.body = m.w.buf.Len()
	return true
}

// onlyDeclarations reports whether attrs carry no properties.
func onlyDeclarations(attrs []xmlAttr) bool {
	for _, a := range attrs {
		if a.name != "xmlns" && a.name != "rdf:about" && !strings.HasPrefix(a.name, "xmlns:") {
			return false
		}
	}
	return true
}

func (m *motionMerger) onEnd(ee xml.EndElement, raw []byte) error {
	if len(m.stack) == 0 {
		return errors.New("unbalanced xml end element " + qname(ee.Name))
	}
	depth := len(m.stack)
	frame := m.stack[depth-1]
	m.stack = m.stack[:depth-1]

	if m.skipDepth > 0 {
		if depth == m.skipDepth {
			m.skipDepth = 0
		}
		return nil
	}

	if frame.dropIfEmpty && len(bytes.TrimSpace(m.w.buf.Bytes()[frame.body:])) == 0 {
		m.w.buf.Truncate(frame.mark)
		return nil
	}

	name := qname(ee.Name)
	switch {
	case name == tagSeq && m.dirDepth > 0 && depth == m.dirDepth+1:
		m.writeMissing("")
	case name == tagDirectory && depth == m.dirDepth:
		if !m.seqInDir {
			m.w.start(tagSeq)
			m.writeMissing("")
			m.w.end(tagSeq)
		}
		m.dirDepth = 0
	case name == tagRDF && !m.injected:
		withDirectory := m.mode == MergeReplaceDirectory || !m.dirFound
		writeMotionDescription(&m.w, m.meta, withDirectory)
		m.injected = true
	}

	if frame.expanded {
		m.w.end(frame.name)
		return nil
	}
	m.w.raw(raw)
	return nil
}
