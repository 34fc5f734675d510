package types

import "time"

// IndexUID is the opaque identifier of an index, handed to the core by the
// index resolver. The core never creates or validates the uid beyond treating
// it as an opaque string key.
type IndexUID string

// ContentID uniquely identifies a payload persisted in the Update File Store.
// It is allocated once by the store and never reused.
type ContentID string

// Format identifies the wire encoding of a document-addition payload.
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
)

// DocumentAdditionMethod selects how newly ingested documents are merged into
// an index's existing documents.
type DocumentAdditionMethod string

const (
	MethodReplaceDocuments DocumentAdditionMethod = "replaceDocuments"
	MethodUpdateDocuments  DocumentAdditionMethod = "updateDocuments"
)

// UpdateKindTag discriminates the variants of UpdateKind. Go has no tagged
// union, so UpdateKind carries the tag plus the fields relevant to it; callers
// must switch on Tag before reading the variant-specific fields.
type UpdateKindTag string

const (
	KindDocumentAddition UpdateKindTag = "documentAddition"
	KindSettings         UpdateKindTag = "settings"
	KindClearDocuments   UpdateKindTag = "clearDocuments"
	KindDeleteDocuments  UpdateKindTag = "deleteDocuments"
)

// UpdateKind is the tagged variant described in spec §3. Exactly one of the
// variant-specific field groups is meaningful, selected by Tag.
type UpdateKind struct {
	Tag UpdateKindTag

	// DocumentAddition fields.
	PrimaryKey string
	Method     DocumentAdditionMethod
	ContentID  ContentID

	// Settings fields.
	Settings *SettingsPatch

	// DeleteDocuments fields.
	DocumentIDs []string
}

// SettingsPatch is a partial update of index configuration. The core treats it
// as an opaque JSON document; the index handle interprets its contents.
type SettingsPatch map[string]any

// NewDocumentAddition builds a DocumentAddition update kind.
func NewDocumentAddition(primaryKey string, method DocumentAdditionMethod, id ContentID) UpdateKind {
	return UpdateKind{Tag: KindDocumentAddition, PrimaryKey: primaryKey, Method: method, ContentID: id}
}

// NewSettings builds a Settings update kind.
func NewSettings(patch SettingsPatch) UpdateKind {
	return UpdateKind{Tag: KindSettings, Settings: &patch}
}

// NewClearDocuments builds a ClearDocuments update kind.
func NewClearDocuments() UpdateKind {
	return UpdateKind{Tag: KindClearDocuments}
}

// NewDeleteDocuments builds a DeleteDocuments update kind.
func NewDeleteDocuments(ids []string) UpdateKind {
	return UpdateKind{Tag: KindDeleteDocuments, DocumentIDs: ids}
}

// UpdateStatusKind is the lifecycle state of an UpdateRecord.
type UpdateStatusKind string

const (
	StatusEnqueued   UpdateStatusKind = "enqueued"
	StatusProcessing UpdateStatusKind = "processing"
	StatusProcessed  UpdateStatusKind = "processed"
	StatusFailed     UpdateStatusKind = "failed"
	StatusAborted    UpdateStatusKind = "aborted"
)

// UpdateStatus carries the status kind plus its terminal payload, if any.
type UpdateStatus struct {
	Kind   UpdateStatusKind
	Result string // opaque success detail, set only when Kind == StatusProcessed
	Error  string // error detail, set only when Kind == StatusFailed
}

// Enqueued, Processing, Processed, Failed and Aborted are convenience
// constructors mirroring the variants of spec §3's status enum.
func Enqueued() UpdateStatus               { return UpdateStatus{Kind: StatusEnqueued} }
func Processing() UpdateStatus             { return UpdateStatus{Kind: StatusProcessing} }
func Processed(result string) UpdateStatus { return UpdateStatus{Kind: StatusProcessed, Result: result} }
func Failed(err string) UpdateStatus       { return UpdateStatus{Kind: StatusFailed, Error: err} }
func Aborted() UpdateStatus                { return UpdateStatus{Kind: StatusAborted} }

// Terminal reports whether the status can no longer transition.
func (s UpdateStatus) Terminal() bool {
	switch s.Kind {
	case StatusProcessed, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// UpdateRecord is what the Update Store keeps per queued mutation (spec §3).
type UpdateRecord struct {
	UpdateID   uint64
	IndexUID   IndexUID
	Kind       UpdateKind
	Status     UpdateStatus
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// UpdateStoreInfo is returned by GetInfo: the store's on-disk size and the
// record currently being processed, if any.
type UpdateStoreInfo struct {
	Size       int64
	Processing *UpdateRecord
}

// DumpStatusKind is the lifecycle state of a dump job. Transitions form a DAG:
// InProgress -> Done or InProgress -> Failed, never backward.
type DumpStatusKind string

const (
	DumpInProgress DumpStatusKind = "inProgress"
	DumpDone       DumpStatusKind = "done"
	DumpFailed     DumpStatusKind = "failed"
)

// DumpInfo describes the state of one dump job. It lives in memory in the
// Dump Actor; there is no durability requirement for it (spec §3).
type DumpInfo struct {
	UID        string
	Status     DumpStatusKind
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// NewDumpInfo starts a fresh DumpInfo in the InProgress state.
func NewDumpInfo(uid string, startedAt time.Time) *DumpInfo {
	return &DumpInfo{UID: uid, Status: DumpInProgress, StartedAt: startedAt}
}

// WithError transitions the dump to Failed, recording the cause.
func (d *DumpInfo) WithError(err error, finishedAt time.Time) {
	d.Status = DumpFailed
	d.Error = err.Error()
	d.FinishedAt = &finishedAt
}

// Done transitions the dump to Done.
func (d *DumpInfo) Done(finishedAt time.Time) {
	d.Status = DumpDone
	d.FinishedAt = &finishedAt
}

// InProgress reports whether the dump has not yet reached a terminal state.
func (d *DumpInfo) InProgress() bool {
	return d.Status == DumpInProgress
}

// DumpVersion identifies the on-disk format of a dump archive's metadata.json.
type DumpVersion string

const (
	DumpV1 DumpVersion = "V1"
	DumpV2 DumpVersion = "V2"
	DumpV3 DumpVersion = "V3"
)

// DumpMetadata is persisted as metadata.json inside a dump archive (spec §3).
// DumpDate is the zero time for V1 archives, which predate the field.
type DumpMetadata struct {
	DumpVersion   DumpVersion `json:"dumpVersion"`
	DBVersion     string      `json:"dbVersion"`
	IndexDBSize   int64       `json:"indexDbSize,omitempty"`
	UpdateDBSize  int64       `json:"updateDbSize,omitempty"`
	DumpDate      time.Time   `json:"dumpDate,omitempty"`
}

// HasDumpDate reports whether DumpDate was present in the source archive.
// V1 metadata never carries it.
func (m DumpMetadata) HasDumpDate() bool {
	return m.DumpVersion != DumpV1 && !m.DumpDate.IsZero()
}
