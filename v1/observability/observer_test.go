package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulti(t *testing.T) {
	var got []string
	record := func(name string) Observer {
		return ObserverFunc(func(ctx OperationContext) {
			got = append(got, name+":"+ctx.Operation)
		})
	}

	Multi(record("a"), nil, record("b")).ObserveOperation(OperationContext{Operation: "commit"})

	assert.Equal(t, []string{"a:commit", "b:commit"}, got)
}
