package model

import "time"

// Channel names used by the sales platform.  The channel map on a
// session is keyed by these strings; new outlets can be added without
// a schema change because the map is open-ended.
const (
	ChannelBoxOffice = "boxOffice" // in-person box office sales
	ChannelInternet  = "internet"  // online store sales
)

// ChannelWindow describes when one sales channel may sell tickets for
// a session.  Start and End are pointers so that an unset bound can be
// distinguished from a zero time; a channel with a nil bound is never
// open.  This mirrors the `canales` JSON column where each entry is
// {activo, inicio, fin}.
type ChannelWindow struct {
	Active bool       `json:"activo"` // canales.<name>.activo
	Start  *time.Time `json:"inicio"` // canales.<name>.inicio (nullable)
	End    *time.Time `json:"fin"`    // canales.<name>.fin (nullable)
}

// ReleaseKind distinguishes the two interpretations of the stored
// signed-minutes release offset.
type ReleaseKind uint8

const (
	// ReleaseBeforeEvent anchors the release instant to the session's
	// celebration time.  The stored minutes are zero or negative:
	// -120 means holds are released two hours before celebration, 0
	// means at the celebration instant.
	ReleaseBeforeEvent ReleaseKind = iota
	// ReleaseAfterHold anchors the release instant to the moment the
	// hold was acquired.  The stored minutes are positive: 1440 means
	// a hold survives one day after it was taken.
	ReleaseAfterHold
)

// ReleasePolicy is the tagged form of `tiempo_caducidad_reservas`.
// The column stores a single signed integer whose sign selects the
// anchor; the two cases come from separate optgroups in the source
// configuration UI and must round-trip identically.
type ReleasePolicy struct {
	Kind    ReleaseKind
	Minutes int // stored value: <= 0 for BeforeEvent, > 0 for AfterHold
}

// ReleasePolicyFromMinutes maps the persisted signed integer onto the
// tagged policy.  Zero and negative values anchor before the event,
// positive values anchor after the hold.
func ReleasePolicyFromMinutes(m int) ReleasePolicy {
	if m > 0 {
		return ReleasePolicy{Kind: ReleaseAfterHold, Minutes: m}
	}
	return ReleasePolicy{Kind: ReleaseBeforeEvent, Minutes: m}
}

// StoredMinutes returns the signed integer exactly as it is persisted
// in `tiempo_caducidad_reservas`.
func (p ReleasePolicy) StoredMinutes() int { return p.Minutes }

// Session represents one scheduled performance of an event (a
// "función").  All relative time calculations anchor on
// CelebrationTime.  This struct corresponds to a row in the
// `funciones` table.
//
// Fields:
//  ID               – primary key identifier.
//  EventID          – event this session belongs to.
//  RoomID           – room/sala where the session takes place.
//  CelebrationTime  – funciones.fecha_celebracion, timezone-qualified.
//  Timezone         – funciones.zona_horaria (IANA name).
//  Channels         – funciones.canales, per-channel sale windows.
//  SameDates        – funciones.misma_fecha_canales; when set all
//                     active channels share one window.
//  Release          – funciones.tiempo_caducidad_reservas as a tagged
//                     policy.
//  Active           – funciones.activo.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Session struct {
	ID              uint64                   // funciones.id
	EventID         uint64                   // funciones.evento_id
	RoomID          uint64                   // funciones.sala_id
	CelebrationTime time.Time                // funciones.fecha_celebracion
	Timezone        string                   // funciones.zona_horaria
	Channels        map[string]ChannelWindow // funciones.canales
	SameDates       bool                     // funciones.misma_fecha_canales
	Release         ReleasePolicy            // funciones.tiempo_caducidad_reservas
	Active          bool                     // funciones.activo
	CreatedAt       time.Time                // funciones.created_at
	UpdatedAt       time.Time                // funciones.updated_at
}
