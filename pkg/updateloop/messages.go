package updateloop

import (
	"bufio"
	"fmt"
	"io"

	"github.com/latticesearch/latticed/pkg/types"
)

// MissingPayloadError is returned when a DocumentAddition request's payload
// stream yields no bytes at all.
type MissingPayloadError struct {
	Format types.Format
}

func (e *MissingPayloadError) Error() string {
	return fmt.Sprintf("updateloop: missing payload for format %q", e.Format)
}

// UpdateRequest is the not-yet-registered mutation carried by an Update
// message. Exactly one group of fields is meaningful, selected by Tag,
// mirroring types.UpdateKind.
type UpdateRequest struct {
	Tag types.UpdateKindTag

	// DocumentAddition fields.
	PrimaryKey string
	Method     types.DocumentAdditionMethod
	Format     types.Format
	Payload    io.Reader

	// Settings fields.
	Settings types.SettingsPatch

	// DeleteDocuments fields.
	DocumentIDs []string
}

type updateMsg struct {
	indexUID types.IndexUID
	request  UpdateRequest
	reply    chan<- updateReply
}

type updateReply struct {
	rec *types.UpdateRecord
	err error
}

func (m *updateMsg) handle(l *Loop) {
	rec, err := l.handleUpdate(m.indexUID, m.request)
	m.reply <- updateReply{rec: rec, err: err}
}

// Update registers a new mutation for indexUID. For DocumentAddition
// requests it streams Payload into the File Store on the handler goroutine
// the Loop dispatches for this message, before handing off to the Update
// Store; the calling goroutine blocks until the reply arrives.
func (l *Loop) Update(indexUID types.IndexUID, req UpdateRequest) (*types.UpdateRecord, error) {
	reply := make(chan updateReply, 1)
	if err := l.enqueue(&updateMsg{indexUID: indexUID, request: req, reply: reply}); err != nil {
		return nil, err
	}
	r := <-reply
	return r.rec, r.err
}

type listUpdatesMsg struct {
	indexUID types.IndexUID
	reply    chan<- listUpdatesReply
}

type listUpdatesReply struct {
	records []*types.UpdateRecord
	err     error
}

func (m *listUpdatesMsg) handle(l *Loop) {
	records, err := l.store.List(m.indexUID)
	m.reply <- listUpdatesReply{records: records, err: err}
}

// ListUpdates returns every update record for indexUID, oldest first.
func (l *Loop) ListUpdates(indexUID types.IndexUID) ([]*types.UpdateRecord, error) {
	reply := make(chan listUpdatesReply, 1)
	if err := l.enqueue(&listUpdatesMsg{indexUID: indexUID, reply: reply}); err != nil {
		return nil, err
	}
	r := <-reply
	return r.records, r.err
}

type getUpdateMsg struct {
	indexUID types.IndexUID
	updateID uint64
	reply    chan<- getUpdateReply
}

type getUpdateReply struct {
	rec *types.UpdateRecord
	err error
}

func (m *getUpdateMsg) handle(l *Loop) {
	rec, err := l.store.Meta(m.indexUID, m.updateID)
	m.reply <- getUpdateReply{rec: rec, err: err}
}

// GetUpdate returns a single update record, or updatestore.ErrUnexistingUpdate.
func (l *Loop) GetUpdate(indexUID types.IndexUID, updateID uint64) (*types.UpdateRecord, error) {
	reply := make(chan getUpdateReply, 1)
	if err := l.enqueue(&getUpdateMsg{indexUID: indexUID, updateID: updateID, reply: reply}); err != nil {
		return nil, err
	}
	r := <-reply
	return r.rec, r.err
}

type deleteIndexMsg struct {
	indexUID types.IndexUID
	reply    chan<- error
}

func (m *deleteIndexMsg) handle(l *Loop) {
	m.reply <- l.store.DeleteAll(m.indexUID)
}

// DeleteIndex discards every record and pending entry for indexUID.
func (l *Loop) DeleteIndex(indexUID types.IndexUID) error {
	reply := make(chan error, 1)
	if err := l.enqueue(&deleteIndexMsg{indexUID: indexUID, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

type snapshotMsg struct {
	indexes []types.IndexUID
	path    string
	reply   chan<- error
}

func (m *snapshotMsg) handle(l *Loop) {
	m.reply <- l.store.Snapshot(m.indexes, m.path)
}

// Snapshot writes a restorable snapshot of indexes plus the Update Store's
// own environment into path.
func (l *Loop) Snapshot(indexes []types.IndexUID, path string) error {
	reply := make(chan error, 1)
	if err := l.enqueue(&snapshotMsg{indexes: indexes, path: path, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

type dumpMsg struct {
	indexes []types.IndexUID
	path    string
	reply   chan<- error
}

func (m *dumpMsg) handle(l *Loop) {
	m.reply <- l.store.Dump(m.indexes, m.path)
}

// Dump writes the update queues, referenced payloads, and each index's own
// dump output for indexes into path.
func (l *Loop) Dump(indexes []types.IndexUID, path string) error {
	reply := make(chan error, 1)
	if err := l.enqueue(&dumpMsg{indexes: indexes, path: path, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

type getInfoMsg struct {
	reply chan<- getInfoReply
}

type getInfoReply struct {
	info *types.UpdateStoreInfo
	err  error
}

func (m *getInfoMsg) handle(l *Loop) {
	info, err := l.store.GetInfo()
	m.reply <- getInfoReply{info: info, err: err}
}

// GetInfo returns the Update Store's size and currently-processing record.
func (l *Loop) GetInfo() (*types.UpdateStoreInfo, error) {
	reply := make(chan getInfoReply, 1)
	if err := l.enqueue(&getInfoMsg{reply: reply}); err != nil {
		return nil, err
	}
	r := <-reply
	return r.info, r.err
}

// handleUpdate builds an UpdateKind from req, persisting a DocumentAddition's
// payload to the File Store first, then registers it with the Update Store.
func (l *Loop) handleUpdate(indexUID types.IndexUID, req UpdateRequest) (*types.UpdateRecord, error) {
	switch req.Tag {
	case types.KindDocumentAddition:
		contentID, err := l.stagePayload(req.Format, req.Payload)
		if err != nil {
			return nil, err
		}
		kind := types.NewDocumentAddition(req.PrimaryKey, req.Method, contentID)
		return l.store.RegisterUpdate(indexUID, kind)

	case types.KindSettings:
		return l.store.RegisterUpdate(indexUID, types.NewSettings(req.Settings))

	case types.KindClearDocuments:
		return l.store.RegisterUpdate(indexUID, types.NewClearDocuments())

	case types.KindDeleteDocuments:
		return l.store.RegisterUpdate(indexUID, types.NewDeleteDocuments(req.DocumentIDs))

	default:
		return nil, fmt.Errorf("updateloop: unknown update kind %q", req.Tag)
	}
}

// stagePayload streams payload into the File Store. A payload that yields
// zero bytes fails with MissingPayloadError before anything is persisted.
func (l *Loop) stagePayload(format types.Format, payload io.Reader) (types.ContentID, error) {
	reader := bufio.NewReader(payload)

	if _, err := reader.Peek(1); err != nil {
		if err == io.EOF {
			return "", &MissingPayloadError{Format: format}
		}
		return "", err
	}

	id, wf, err := l.files.NewUpdate()
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(wf, reader); err != nil {
		wf.Abort()
		return "", err
	}
	if err := wf.Persist(); err != nil {
		return "", err
	}

	return types.ContentID(id), nil
}
