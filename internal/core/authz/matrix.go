// Package authz holds the single access-control matrix of the portal.
// Every caller-facing operation asks Decide before touching a store.
package authz

import "github.com/kirillkom/medical-portal/internal/core/domain"

type Operation string

const (
	OpUpload       Operation = "upload"
	OpListByType   Operation = "listByType"
	OpViewDetail   Operation = "viewDetail"
	OpUpdateStatus Operation = "updateStatus"
	OpViewStats    Operation = "viewStats"
	OpViewPresence Operation = "viewPresence"
	OpChangeRole   Operation = "changeRole"
)

// Relation describes how the caller relates to the document in question.
type Relation string

const (
	RelationNone  Relation = ""
	RelationOwner Relation = "owner"
)

type Reason string

const (
	ReasonAllowed             Reason = "allowed"
	ReasonRoleNotPermitted    Reason = "role_not_permitted"
	ReasonOwnerOnly           Reason = "owner_only"
	ReasonUnknownOperation    Reason = "unknown_operation"
	ReasonUnknownRole         Reason = "unknown_role"
	ReasonUnknownDocumentType Reason = "unknown_document_type"
)

type Decision struct {
	Allow  bool   `json:"allow"`
	Reason Reason `json:"reason"`
}

func allow() Decision {
	return Decision{Allow: true, Reason: ReasonAllowed}
}

func deny(r Reason) Decision {
	return Decision{Reason: r}
}

// access is what one role may do with one kind of resource.
type access uint8

const (
	denied access = iota
	granted
	ownerOnly
)

type documentRule map[domain.DocumentType]map[domain.Role]access

var documentRules = map[Operation]documentRule{
	OpUpload: {
		domain.TypeReference: {domain.RoleAdmin: granted},
		domain.TypePatient:   {domain.RoleDoctor: granted},
	},
	OpListByType: {
		domain.TypeReference: {domain.RoleAdmin: granted},
		domain.TypePatient:   {domain.RoleAdmin: granted, domain.RoleDoctor: granted, domain.RolePatient: ownerOnly},
	},
	OpViewDetail: {
		domain.TypeReference: {domain.RoleAdmin: granted},
		domain.TypePatient:   {domain.RoleAdmin: granted, domain.RoleDoctor: granted, domain.RolePatient: ownerOnly},
	},
	// Only the phase scheduler mutates status; no caller role is listed.
	OpUpdateStatus: {},
}

var adminRules = map[Operation]map[domain.Role]access{
	OpViewStats:    {domain.RoleAdmin: granted},
	OpViewPresence: {domain.RoleAdmin: granted},
	OpChangeRole:   {domain.RoleAdmin: granted},
}

// Decide is total: any combination not granted above is denied.
func Decide(role domain.Role, op Operation, docType domain.DocumentType, rel Relation) Decision {
	if !role.Valid() {
		return deny(ReasonUnknownRole)
	}

	if rules, ok := adminRules[op]; ok {
		return resolve(rules[role], rel)
	}

	rules, ok := documentRules[op]
	if !ok {
		return deny(ReasonUnknownOperation)
	}
	if !docType.Valid() {
		return deny(ReasonUnknownDocumentType)
	}
	return resolve(rules[docType][role], rel)
}

func resolve(a access, rel Relation) Decision {
	switch a {
	case granted:
		return allow()
	case ownerOnly:
		if rel == RelationOwner {
			return allow()
		}
		return deny(ReasonOwnerOnly)
	default:
		return deny(ReasonRoleNotPermitted)
	}
}

// Require converts a denial into a domain.ErrForbidden error.
func Require(identity domain.Identity, op Operation, docType domain.DocumentType, rel Relation) error {
	decision := Decide(identity.Role, op, docType, rel)
	if decision.Allow {
		return nil
	}
	return domain.WrapError(domain.ErrForbidden, string(op), &DeniedError{
		Role:      identity.Role,
		Operation: op,
		Type:      docType,
		Reason:    decision.Reason,
	})
}

type DeniedError struct {
	Role      domain.Role
	Operation Operation
	Type      domain.DocumentType
	Reason    Reason
}

func (e *DeniedError) Error() string {
	if e.Type == "" {
		return "role " + string(e.Role) + " denied: " + string(e.Reason)
	}
	return "role " + string(e.Role) + " denied on " + string(e.Type) + ": " + string(e.Reason)
}

// RelationTo reports how identity relates to doc.
func RelationTo(identity domain.Identity, doc domain.Document) Relation {
	if doc.Type == domain.TypePatient && doc.PatientID != "" && doc.PatientID == identity.UserID {
		return RelationOwner
	}
	return RelationNone
}
