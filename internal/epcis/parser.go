package epcis

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
)

// ParseDocument decodes content as either EPCIS XML 1.2 or EPCIS 2.0 JSON
// into a header map, a slice of typed
// Events in document order, the set of company prefixes observed across
// every EPC in every event, and any parse-level errors.
//
// A malformed document yields a single format/error and no events. A
// well-formed document whose individual events fail to convert records a
// format/error per offending event and continues with the rest.
func ParseDocument(content []byte, isXML bool) (header map[string]interface{}, events []Event, companies map[string]bool, parseErrors []ValidationError) {
	companies = map[string]bool{}

	if isXML {
		header, events, parseErrors = parseXML(content, companies)
	} else {
		header, events, parseErrors = parseJSON(content, companies)
	}
	return header, events, companies, parseErrors
}

// --- XML path -----------------------------------------------------------

func parseXML(content []byte, companies map[string]bool) (header map[string]interface{}, events []Event, errs []ValidationError) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, nil, []ValidationError{{
			Type: ErrFormat, Severity: SeverityError,
			Message: fmt.Sprintf("Invalid XML format: %v", err),
		}}
	}
	root := doc.Root()
	if root == nil {
		return nil, nil, []ValidationError{{
			Type: ErrFormat, Severity: SeverityError,
			Message: "Invalid XML format: document has no root element",
		}}
	}

	if !hasEPCISNamespace(root) {
		errs = append(errs, ValidationError{
			Type: ErrStructure, Severity: SeverityError,
			Message: "Missing EPCIS namespace declaration",
		})
	}

	if headerElem := root.FindElement(".//StandardBusinessDocumentHeader"); headerElem != nil {
		if m, ok := xmlElementToMap(headerElem).(map[string]interface{}); ok {
			header = m
		}
	}

	var eventElems []*etree.Element
	collectEventElements(root, &eventElems)

	lineInfos, lineErr := locateEventLines(content)
	_ = lineErr // best-effort; zero line numbers if the decoder pass fails

	for i, elem := range eventElems {
		var info eventLineInfo
		if i < len(lineInfos) {
			info = lineInfos[i]
		}
		ev, err := func() (ev Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()
			return xmlElementToEvent(elem, info), nil
		}()
		if err != nil {
			errs = append(errs, ValidationError{
				Type: ErrFormat, Severity: SeverityError,
				Message: fmt.Sprintf("Error parsing event: %v", err),
			})
			continue
		}
		accumulateCompanyPrefixes(ev, companies)
		events = append(events, ev)
	}

	return header, events, errs
}

// hasEPCISNamespace reports whether any xmlns declaration on the root
// element names a namespace containing "epcis" (case-insensitive). Real
// EPCIS documents declare their namespace on the document root, so a
// root-only scan is sufficient.
func hasEPCISNamespace(root *etree.Element) bool {
	for _, a := range root.Attr {
		if a.Space == "xmlns" || a.Key == "xmlns" {
			if strings.Contains(strings.ToLower(a.Value), "epcis") {
				return true
			}
		}
	}
	return false
}

// collectEventElements walks elem's descendants depth-first, appending
// ObjectEvent/AggregationEvent elements in document order. Matching the
// decoder-based walk in locateEventLines keeps the two passes' results
// aligned by index.
func collectEventElements(elem *etree.Element, out *[]*etree.Element) {
	for _, child := range elem.ChildElements() {
		if child.Tag == "ObjectEvent" || child.Tag == "AggregationEvent" {
			*out = append(*out, child)
		}
		collectEventElements(child, out)
	}
}

// eventLineInfo records the source line an event element started on,
// plus the per-EPC lines of any epcList/childEPCs entries it carries.
type eventLineInfo struct {
	eventLine  int
	epcLines   []int
	childLines []int
}

// locateEventLines makes a second, lightweight pass over the raw XML
// bytes with encoding/xml.Decoder to recover source line numbers. etree
// has no line-tracking API, so this pass is the only way to attach a
// line number to each event and EPC. A decoder's InputOffset()
// immediately after a StartElement token points just past that
// element's opening tag; counting newlines up to that offset gives a
// 1-based line number.
func locateEventLines(content []byte) ([]eventLineInfo, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var infos []eventLineInfo
	var cur *eventLineInfo
	var stack []string

	lineAt := func(offset int64) int {
		if offset < 0 {
			offset = 0
		}
		if int(offset) > len(content) {
			offset = int64(len(content))
		}
		return 1 + bytes.Count(content[:offset], []byte("\n"))
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return infos, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch name {
			case "ObjectEvent", "AggregationEvent":
				infos = append(infos, eventLineInfo{eventLine: lineAt(dec.InputOffset())})
				cur = &infos[len(infos)-1]
			case "epc":
				if cur != nil && len(stack) > 0 {
					switch stack[len(stack)-1] {
					case "epcList":
						cur.epcLines = append(cur.epcLines, lineAt(dec.InputOffset()))
					case "childEPCs":
						cur.childLines = append(cur.childLines, lineAt(dec.InputOffset()))
					}
				}
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return infos, nil
}

func xmlElementToEvent(elem *etree.Element, info eventLineInfo) Event {
	ev := Event{
		EventType:  EventType(elem.Tag),
		LineNumber: info.eventLine,
	}

	ev.Action = Action(childText(elem, "action"))
	ev.EventTime = childText(elem, "eventTime")
	ev.EventTimeZoneOffset = childText(elem, "eventTimeZoneOffset")
	ev.RecordTime = childText(elem, "recordTime")
	ev.BizStep = childText(elem, "bizStep")
	ev.Disposition = childText(elem, "disposition")
	ev.ParentID = childText(elem, "parentID")

	ev.EPCList = epcRefsFromList(elem.FindElement("./epcList"), info.epcLines, info.eventLine)
	ev.ChildEPCs = epcRefsFromList(elem.FindElement("./childEPCs"), info.childLines, info.eventLine)
	ev.InputEPCList = epcRefsFromList(elem.FindElement("./inputEPCList"), nil, info.eventLine)
	ev.OutputEPCList = epcRefsFromList(elem.FindElement("./outputEPCList"), nil, info.eventLine)

	if rp := elem.FindElement("./readPoint"); rp != nil {
		if id := childText(rp, "id"); id != "" {
			ev.ReadPoint = &LocationRef{ID: id}
		}
	}
	if bl := elem.FindElement("./bizLocation"); bl != nil {
		if id := childText(bl, "id"); id != "" {
			ev.BizLocation = &LocationRef{ID: id}
		}
	}

	if btl := elem.FindElement("./bizTransactionList"); btl != nil {
		for _, txn := range btl.FindElements(".//bizTransaction") {
			t := strings.TrimSpace(txn.Text())
			if t == "" {
				continue
			}
			ev.BizTransactionList = append(ev.BizTransactionList, BizTransaction{
				Type:           txn.SelectAttrValue("type", ""),
				BizTransaction: t,
			})
		}
	}

	// Shipping's source/destination lists may live at the event's root
	// level or nested under extension; check both.
	ev.SourceList = findPartyElements(elem, "sourceList", "source")
	ev.DestinationList = findPartyElements(elem, "destinationList", "destination")

	if ext := elem.FindElement("./extension"); ext != nil {
		if ilmdElem := ext.FindElement(".//ilmd"); ilmdElem != nil {
			ev.ILMD = &ILMD{
				LotNumber:          firstChildText(ilmdElem, "lotNumber"),
				ItemExpirationDate: firstChildText(ilmdElem, "itemExpirationDate"),
				ProductionDate:     firstChildText(ilmdElem, "productionDate"),
			}
		}
	}

	return ev
}

// findPartyElements looks for listTag (e.g. "sourceList") as a direct
// child of elem first, then under elem's extension child, and converts
// whichever is found into Party entries.
func findPartyElements(elem *etree.Element, listTag, itemTag string) []Party {
	list := elem.FindElement("./" + listTag)
	if list == nil {
		if ext := elem.FindElement("./extension"); ext != nil {
			list = ext.FindElement(".//" + listTag)
		}
	}
	if list == nil {
		return nil
	}
	var parties []Party
	for _, item := range list.FindElements(".//" + itemTag) {
		t := strings.TrimSpace(item.Text())
		if t == "" {
			continue
		}
		parties = append(parties, Party{Type: item.SelectAttrValue("type", ""), Value: t})
	}
	return parties
}

// firstChildText finds tag anywhere among elem's direct and namespaced
// children (etree strips namespace prefixes into Element.Space, leaving
// Tag as the bare local name, so a plain tag match handles both bare and
// cbvmda:-prefixed ILMD keys).
func firstChildText(elem *etree.Element, tag string) string {
	if c := elem.FindElement(".//" + tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func childText(elem *etree.Element, tag string) string {
	if c := elem.FindElement("./" + tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func epcRefsFromList(listElem *etree.Element, lines []int, fallbackLine int) []EPCRef {
	if listElem == nil {
		return nil
	}
	var refs []EPCRef
	i := 0
	for _, epcElem := range listElem.FindElements(".//epc") {
		t := strings.TrimSpace(epcElem.Text())
		if t == "" {
			continue
		}
		line := fallbackLine
		if i < len(lines) {
			line = lines[i]
		}
		refs = append(refs, EPCRef{Value: t, LineNumber: line})
		i++
	}
	return refs
}

// xmlElementToMap converts an arbitrary element into a nested mapping:
// attributes become keys, known array-valued tags collapse to ordered
// slices, readPoint/bizLocation collapse to {"id": ...}, extension nests
// source/destination lists, everything else recurses, and bare text
// becomes either the scalar value or a "value" key when siblings exist.
func xmlElementToMap(elem *etree.Element) interface{} {
	result := map[string]interface{}{}
	for _, a := range elem.Attr {
		result[a.Key] = a.Value
	}

	for _, child := range elem.ChildElements() {
		switch child.Tag {
		case "epcList", "childEPCs":
			var arr []string
			for _, e := range child.FindElements(".//epc") {
				if t := strings.TrimSpace(e.Text()); t != "" {
					arr = append(arr, t)
				}
			}
			result[child.Tag] = arr
		case "bizTransactionList":
			var arr []map[string]string
			for _, txn := range child.FindElements(".//bizTransaction") {
				if t := strings.TrimSpace(txn.Text()); t != "" {
					arr = append(arr, map[string]string{
						"type": txn.SelectAttrValue("type", ""), "bizTransaction": t,
					})
				}
			}
			result[child.Tag] = arr
		case "readPoint", "bizLocation":
			if idElem := child.FindElement(".//id"); idElem != nil {
				if t := strings.TrimSpace(idElem.Text()); t != "" {
					result[child.Tag] = map[string]string{"id": t}
				}
			}
		case "extension":
			ext := map[string]interface{}{}
			if sl := child.FindElement(".//sourceList"); sl != nil {
				var arr []map[string]string
				for _, s := range sl.FindElements(".//source") {
					if t := strings.TrimSpace(s.Text()); t != "" {
						arr = append(arr, map[string]string{"type": s.SelectAttrValue("type", ""), "source": t})
					}
				}
				ext["sourceList"] = arr
			}
			if dl := child.FindElement(".//destinationList"); dl != nil {
				var arr []map[string]string
				for _, d := range dl.FindElements(".//destination") {
					if t := strings.TrimSpace(d.Text()); t != "" {
						arr = append(arr, map[string]string{"type": d.SelectAttrValue("type", ""), "destination": t})
					}
				}
				ext["destinationList"] = arr
			}
			result[child.Tag] = ext
		default:
			childVal := xmlElementToMap(child)
			if existing, ok := result[child.Tag]; ok {
				if list, ok := existing.([]interface{}); ok {
					result[child.Tag] = append(list, childVal)
				} else {
					result[child.Tag] = []interface{}{existing, childVal}
				}
			} else {
				result[child.Tag] = childVal
			}
		}
	}

	if text := strings.TrimSpace(elem.Text()); text != "" {
		if len(result) == 0 {
			return text
		}
		result["value"] = text
	}
	return result
}

// --- JSON path ------------------------------------------------------------

func parseJSON(content []byte, companies map[string]bool) (header map[string]interface{}, events []Event, errs []ValidationError) {
	var data map[string]interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, nil, []ValidationError{{
			Type: ErrFormat, Severity: SeverityError,
			Message: fmt.Sprintf("Invalid JSON format: %v", err),
		}}
	}

	if !hasEPCISContext(data["@context"]) {
		errs = append(errs, ValidationError{
			Type: ErrStructure, Severity: SeverityError,
			Message: "Missing EPCIS context in JSON",
		})
	}

	if h, ok := data["header"].(map[string]interface{}); ok {
		header = h
	}

	rawEvents, _ := data["eventList"].([]interface{})
	for _, raw := range rawEvents {
		m, ok := raw.(map[string]interface{})
		if !ok {
			errs = append(errs, ValidationError{
				Type: ErrFormat, Severity: SeverityError,
				Message: "Error parsing event: event is not a JSON object",
			})
			continue
		}
		ev, err := func() (ev Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()
			return jsonToEvent(m), nil
		}()
		if err != nil {
			errs = append(errs, ValidationError{
				Type: ErrFormat, Severity: SeverityError,
				Message: fmt.Sprintf("Error parsing event: %v", err),
			})
			continue
		}
		accumulateCompanyPrefixes(ev, companies)
		events = append(events, ev)
	}

	return header, events, errs
}

func hasEPCISContext(ctx interface{}) bool {
	switch v := ctx.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), "epcis")
	case []interface{}:
		for _, entry := range v {
			if strings.Contains(strings.ToLower(fmt.Sprintf("%v", entry)), "epcis") {
				return true
			}
		}
	}
	return false
}

func jsonToEvent(m map[string]interface{}) Event {
	ev := Event{}

	ev.EventType = EventType(jsonString(m, "type", "ObjectEvent"))
	ev.Action = Action(jsonString(m, "action", ""))
	ev.EventTime = jsonString(m, "eventTime", "")
	ev.EventTimeZoneOffset = jsonString(m, "eventTimeZoneOffset", "")
	ev.RecordTime = jsonString(m, "recordTime", "")
	ev.BizStep = jsonString(m, "bizStep", "")
	ev.Disposition = jsonString(m, "disposition", "")
	ev.ParentID = jsonString(m, "parentID", "")

	ev.EPCList = jsonEPCRefs(m["epcList"])
	ev.ChildEPCs = jsonEPCRefs(m["childEPCs"])
	ev.InputEPCList = jsonEPCRefs(m["inputEPCList"])
	ev.OutputEPCList = jsonEPCRefs(m["outputEPCList"])

	if rp, ok := m["readPoint"].(map[string]interface{}); ok {
		if id, ok := rp["id"].(string); ok && id != "" {
			ev.ReadPoint = &LocationRef{ID: id}
		}
	}
	if bl, ok := m["bizLocation"].(map[string]interface{}); ok {
		if id, ok := bl["id"].(string); ok && id != "" {
			ev.BizLocation = &LocationRef{ID: id}
		}
	}

	if arr, ok := m["bizTransactionList"].([]interface{}); ok {
		for _, raw := range arr {
			t, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			ev.BizTransactionList = append(ev.BizTransactionList, BizTransaction{
				Type:           jsonString(t, "type", ""),
				BizTransaction: jsonString(t, "bizTransaction", ""),
			})
		}
	}

	ev.SourceList = jsonParties(m, "sourceList", "source")
	ev.DestinationList = jsonParties(m, "destinationList", "destination")

	ilmdRaw, ilmdOK := m["ilmd"].(map[string]interface{})
	if !ilmdOK {
		if ext, ok := m["extension"].(map[string]interface{}); ok {
			ilmdRaw, ilmdOK = ext["ilmd"].(map[string]interface{})
		}
	}
	if ilmdOK {
		ev.ILMD = &ILMD{
			LotNumber:          jsonString(ilmdRaw, "lotNumber", ""),
			ItemExpirationDate: jsonString(ilmdRaw, "itemExpirationDate", ""),
			ProductionDate:     jsonString(ilmdRaw, "productionDate", ""),
		}
	}

	return ev
}

// jsonParties looks up listKey at the event's top level first (the shape
// EPCIS 2.0 JSON-LD normally uses), falling back to the same key nested
// under "extension" — the JSON analogue of the XML dual-location lookup.
func jsonParties(m map[string]interface{}, listKey, itemKey string) []Party {
	arr, ok := m[listKey].([]interface{})
	if !ok {
		if ext, ok2 := m["extension"].(map[string]interface{}); ok2 {
			arr, ok = ext[listKey].([]interface{})
		}
	}
	if !ok {
		return nil
	}
	var parties []Party
	for _, raw := range arr {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		parties = append(parties, Party{
			Type:  jsonString(entry, "type", ""),
			Value: jsonString(entry, itemKey, ""),
		})
	}
	return parties
}

func jsonEPCRefs(raw interface{}) []EPCRef {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var refs []EPCRef
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			refs = append(refs, EPCRef{Value: s})
		}
	}
	return refs
}

func jsonString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// accumulateCompanyPrefixes folds every EPC in ev's EPC-bearing fields
// into companies.
func accumulateCompanyPrefixes(ev Event, companies map[string]bool) {
	for _, list := range [][]EPCRef{ev.EPCList, ev.ChildEPCs, ev.InputEPCList, ev.OutputEPCList} {
		for _, ref := range list {
			if prefix, ok := ExtractCompanyPrefix(ref.Value); ok {
				companies[prefix] = true
			}
		}
	}
}
