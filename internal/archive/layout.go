package archive

// SelectBodyDocuments picks the body renditions that enter the archive under
// the given layout policy. Preference policies fall back to the other
// rendition when the preferred one does not exist; exclusive policies never
// fall back. The result is empty when no acceptable rendition exists, which
// is legitimate for messages without a body.
func SelectBodyDocuments(layout LayoutPolicy, text, html PageDocument) []PageDocument {
	switch layout {
	case LayoutPreferTextThenHTML:
		if text.Exists {
			return []PageDocument{text}
		}
		if html.Exists {
			return []PageDocument{html}
		}
	case LayoutPreferHTMLThenText:
		if html.Exists {
			return []PageDocument{html}
		}
		if text.Exists {
			return []PageDocument{text}
		}
	case LayoutTextOnly:
		if text.Exists {
			return []PageDocument{text}
		}
	case LayoutHTMLOnly:
		if html.Exists {
			return []PageDocument{html}
		}
	}
	return nil
}
