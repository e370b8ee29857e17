package cushion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

//-----------------------------------------------------------------------------

// prepdoc turns the caller's document into raw json and probes the
// reserved fields without a full decode.
func prepdoc(doc interface{}) (js []byte, id string, hasRev bool, err error) {
	switch x := doc.(type) {
	case string:
		js = []byte(x)
	case []byte:
		js = x
	default:
		js, err = json.Marshal(doc)
		if err != nil {
			return nil, "", false, ErrInvalidJSONDoc
		}
	}
	if !gjson.ValidBytes(js) || !gjson.ParseBytes(js).IsObject() {
		return nil, "", false, ErrInvalidJSONDoc
	}
	if res := gjson.GetBytes(js, "_id"); res.Exists() {
		id = res.String()
	}
	hasRev = gjson.GetBytes(js, "_rev").Exists()
	return js, id, hasRev, nil
}

// storeddoc strips _rev, forces _id and re-encodes. The returned map is
// the decoded body the stored bytes were produced from.
func storeddoc(js []byte, id string) ([]byte, Document, error) {
	var d Document
	if err := json.Unmarshal(js, &d); err != nil {
		return nil, nil, ErrInvalidJSONDoc
	}
	delete(d, "_rev")
	d["_id"] = id
	out, err := json.Marshal(d)
	if err != nil {
		return nil, nil, ErrInvalidJSONDoc
	}
	return out, d, nil
}

func docFromStored(js []byte, ver uint64) (Document, error) {
	var d Document
	if err := json.Unmarshal(js, &d); err != nil {
		return nil, fmt.Errorf("decode stored doc: %w", err)
	}
	d["_rev"] = revstr(ver)
	return d, nil
}

//-----------------------------------------------------------------------------

// revstr renders a version token. Tokens are opaque to callers; the hex
// form keeps them equality-comparable and monotonic in the store's order.
func revstr(ver uint64) string {
	return fmt.Sprintf("%016x", ver)
}

func parseRev(rev string) (uint64, bool) {
	if len(rev) != 16 {
		return 0, false
	}
	ver, err := strconv.ParseUint(rev, 16, 64)
	if err != nil {
		return 0, false
	}
	return ver, true
}

//-----------------------------------------------------------------------------

// viewSignature is the content address of a view's map function. Source
// carries the textual identity of the function body; the view name stands
// in when the caller does not provide one.
func viewSignature(v View) string {
	src := v.Source
	if src == "" {
		src = v.Name
	}
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

//-----------------------------------------------------------------------------
