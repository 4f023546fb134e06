package language

import (
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// WrapError turns an arbitrary error into a GraphQL error. GraphQL errors pass
// through unchanged.
func WrapError(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return ge
	}
	return gqlerror.Wrap(err)
}

// Errorf builds a GraphQL error with no location or path.
func Errorf(format string, args ...any) *Error {
	return &gqlerror.Error{Message: fmt.Sprintf(format, args...)}
}

// PrimaryOperation returns the single operation of doc, or the one named name.
// Fragment-only documents return nil.
func PrimaryOperation(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	if name != "" {
		if op := doc.Operations.ForName(name); op != nil {
			return op
		}
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}
