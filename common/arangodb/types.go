package arangodb

// RelationType is the union of knowledge relations and profile relations from
// the property-graph schema. NormalizeRelationType maps an unknown type to
// RelationRelatedTo; UpsertEdge does not call it and stores Edge.Type and
// Edge.OriginalType as given.
type RelationType string

const (
	RelationPrereq       RelationType = "PREREQ"
	RelationVariantOf    RelationType = "VARIANT_OF"
	RelationImproves     RelationType = "IMPROVES"
	RelationUses         RelationType = "USES"
	RelationAppliesTo    RelationType = "APPLIES_TO"
	RelationBelongsTo    RelationType = "BELONGS_TO"
	RelationRelatedTo    RelationType = "RELATED_TO"
	RelationMastered     RelationType = "MASTERED"
	RelationWeakAt       RelationType = "WEAK_AT"
	RelationInterestedIn RelationType = "INTERESTED_IN"
)

var knownRelationTypes = map[RelationType]bool{
	RelationPrereq: true, RelationVariantOf: true, RelationImproves: true,
	RelationUses: true, RelationAppliesTo: true, RelationBelongsTo: true,
	RelationRelatedTo: true, RelationMastered: true, RelationWeakAt: true,
	RelationInterestedIn: true,
}

// NormalizeRelationType maps an unknown relation type name to RELATED_TO,
// returning the original name so callers can stash it in Edge.OriginalType.
func NormalizeRelationType(t string) (RelationType, string) {
	rt := RelationType(t)
	if knownRelationTypes[rt] {
		return rt, ""
	}
	return RelationRelatedTo, t
}

// EntityType is the closed set of knowledge-entity types.
type EntityType string

const (
	EntityAlgorithm     EntityType = "Algorithm"
	EntityDataStructure EntityType = "DataStructure"
	EntityTechnique     EntityType = "Technique"
	EntityProblem       EntityType = "Problem"
	EntityConcept       EntityType = "Concept"
)

// Node is a labeled property-graph vertex. Known-type entities carry Type
// drawn from the EntityType set; User nodes leave Type empty and set UserID.
type Node struct {
	EntityID    string
	Name        string
	Type        EntityType
	Description string
	Aliases     []string
	UserID      string
}

// Edge is a labeled property-graph relationship between two Node.EntityID
// (or UserID) values.
type Edge struct {
	From         string
	To           string
	Type         RelationType
	OriginalType string
	Description  string
	Weight       float64
}

// Row is one result row from a structured query, keyed by RETURN alias.
type Row map[string]any

// QueryResult distinguishes an auto-bounded LIMIT from a naturally short
// result set.
type QueryResult struct {
	Rows      []Row
	Truncated bool
}
