package uhdrbake

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

const (
	nsX         = "adobe:ns:meta/"
	nsRDF       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsGCamera   = "http://ns.google.com/photos/1.0/camera/"
	nsContainer = "http://ns.google.com/photos/1.0/container/"
	nsItem      = "http://ns.google.com/photos/1.0/container/item/"
)

const (
	mimeJPEG = "image/jpeg"
	mimeMP4  = "video/mp4"

	semanticPrimary     = "Primary"
	semanticGainMap     = "GainMap"
	semanticMotionPhoto = "MotionPhoto"
)

type xmlAttr struct {
	name, value string
}

// xmlWriter emits compact XML without indentation.
type xmlWriter struct {
	buf bytes.Buffer
}

func (w *xmlWriter) tag(name string, attrs []xmlAttr, selfClose bool) {
	w.buf.WriteByte('<')
	w.buf.WriteString(name)
	for _, a := range attrs {
		w.buf.WriteByte(' ')
		w.buf.WriteString(a.name)
		w.buf.WriteString(`="`)
		_ = xml.EscapeText(&w.buf, []byte(a.value))
		w.buf.WriteByte('"')
	}
	if selfClose {
		w.buf.WriteByte('/')
	}
	w.buf.WriteByte('>')
}

func (w *xmlWriter) start(name string, attrs ...xmlAttr) { w.tag(name, attrs, false) }

func (w *xmlWriter) empty(name string, attrs ...xmlAttr) { w.tag(name, attrs, true) }

func (w *xmlWriter) end(name string) {
	w.buf.WriteString("</")
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
}

func (w *xmlWriter) raw(b []byte) { w.buf.Write(b) }

func (w *xmlWriter) bytes() []byte { return w.buf.Bytes() }

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func attrsOf(se xml.StartElement) []xmlAttr {
	attrs := make([]xmlAttr, 0, len(se.Attr))
	for _, a := range se.Attr {
		attrs = append(attrs, xmlAttr{name: qname(a.Name), value: a.Value})
	}
	return attrs
}

func attrValue(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if qname(a.Name) == name {
			return a.Value, true
		}
	}
	return "", false
}

// setAttr replaces the value of name, appending it when missing.
func setAttr(attrs []xmlAttr, name, value string) []xmlAttr {
	for i := range attrs {
		if attrs[i].name == name {
			attrs[i].value = value
			return attrs
		}
	}
	return append(attrs, xmlAttr{name: name, value: value})
}

func writeContainerItem(w *xmlWriter, mime, semantic string, length int) {
	w.start("rdf:li", xmlAttr{"rdf:parseType", "Resource"})
	w.empty("Container:Item",
		xmlAttr{"Item:Mime", mime},
		xmlAttr{"Item:Semantic", semantic},
		xmlAttr{"Item:Length", strconv.Itoa(length)},
		xmlAttr{"Item:Padding", "0"},
	)
	w.end("rdf:li")
}

func writeContainerDirectory(w *xmlWriter, meta MotionMeta) {
	w.start("Container:Directory")
	w.start("rdf:Seq")
	writeContainerItem(w, mimeJPEG, semanticPrimary, meta.PrimaryLen)
	if meta.GainMapLen > 0 {
		writeContainerItem(w, mimeJPEG, semanticGainMap, meta.GainMapLen)
	}
	writeContainerItem(w, mimeMP4, semanticMotionPhoto, meta.VideoLen)
	w.end("rdf:Seq")
	w.end("Container:Directory")
}

func writeMotionDescription(w *xmlWriter, meta MotionMeta, withDirectory bool) {
	w.start("rdf:Description",
		xmlAttr{"xmlns:GCamera", nsGCamera},
		xmlAttr{"xmlns:Container", nsContainer},
		xmlAttr{"xmlns:Item", nsItem},
		xmlAttr{"GCamera:MotionPhoto", "1"},
		xmlAttr{"GCamera:MotionPhotoVersion", "1"},
		xmlAttr{"GCamera:MotionPhotoPresentationTimestampUs", strconv.FormatUint(meta.PresentationTimestampUs, 10)},
	)
	if withDirectory {
		writeContainerDirectory(w, meta)
	}
	w.end("rdf:Description")
}

func freshMotionXMP(meta MotionMeta) []byte {
	var w xmlWriter
	w.start("x:xmpmeta", xmlAttr{"xmlns:x", nsX})
	w.start("rdf:RDF", xmlAttr{"xmlns:rdf", nsRDF})
	writeMotionDescription(&w, meta, true)
	w.end("rdf:RDF")
	w.end("x:xmpmeta")
	return w.bytes()
}
