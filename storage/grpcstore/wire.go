package grpcstore

import (
	"encoding/json"
	"fmt"

	"xdao.co/authledger/model"
	"xdao.co/authledger/storage"
)

// wireRecord carries one record; the body uses the persisted JSON form.
type wireRecord struct {
	PublicKey string               `json:"public_key"`
	Body      model.IdentityRecord `json:"body"`
}

type wireStatus struct {
	PublicKey string       `json:"public_key"`
	Status    model.Status `json:"status"`
}

func encodeRecord(rec model.IdentityRecord) ([]byte, error) {
	return json.Marshal(wireRecord{PublicKey: rec.PublicKey, Body: rec})
}

func decodeRecord(b []byte) (model.IdentityRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return model.IdentityRecord{}, fmt.Errorf("%w: record: %v", storage.ErrCorrupt, err)
	}
	rec := w.Body
	rec.PublicKey = w.PublicKey
	return rec, nil
}

func encodeRecords(recs []model.IdentityRecord) ([]byte, error) {
	out := make([]wireRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, wireRecord{PublicKey: rec.PublicKey, Body: rec})
	}
	return json.Marshal(out)
}

func decodeRecords(b []byte) ([]model.IdentityRecord, error) {
	var ws []wireRecord
	if err := json.Unmarshal(b, &ws); err != nil {
		return nil, fmt.Errorf("%w: records: %v", storage.ErrCorrupt, err)
	}
	out := make([]model.IdentityRecord, 0, len(ws))
	for _, w := range ws {
		rec := w.Body
		rec.PublicKey = w.PublicKey
		out = append(out, rec)
	}
	return out, nil
}
