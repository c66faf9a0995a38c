package core

import "fmt"

// BlockType names the rule family that denied admission.
type BlockType int32

const (
	BlockTypeFlow BlockType = iota
	BlockTypeDegrade
	BlockTypeAuthority
	BlockTypeParamFlow
	BlockTypeSystem
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeFlow:
		return "flow"
	case BlockTypeDegrade:
		return "degrade"
	case BlockTypeAuthority:
		return "authority"
	case BlockTypeParamFlow:
		return "param-flow"
	case BlockTypeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Rule is the minimal view the core needs of any concrete rule.
type Rule interface {
	ResourceName() string
	fmt.Stringer
}

// BlockError is the typed admission denial propagated to the caller of
// Entry. It carries the triggering rule and, for param-flow, the offending
// argument value.
type BlockError struct {
	blockType      BlockType
	resource       string
	rule           Rule
	triggeredValue any
}

func NewBlockError(t BlockType, resource string, rule Rule) *BlockError {
	return &BlockError{blockType: t, resource: resource, rule: rule}
}

func NewParamBlockError(resource string, rule Rule, value any) *BlockError {
	return &BlockError{blockType: BlockTypeParamFlow, resource: resource, rule: rule, triggeredValue: value}
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("blocked by %s rule on resource %q", e.blockType, e.resource)
}

func (e *BlockError) BlockType() BlockType { return e.blockType }
func (e *BlockError) Resource() string     { return e.resource }
func (e *BlockError) Rule() Rule           { return e.rule }
func (e *BlockError) TriggeredValue() any  { return e.triggeredValue }

// IsBlockType reports whether err is a BlockError of the given type.
func IsBlockType(err error, t BlockType) bool {
	be, ok := err.(*BlockError)
	return ok && be.blockType == t
}
