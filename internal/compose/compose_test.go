package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCompose = `
name: sample
services:
  db:
    image: library/postgres:16
  cache:
    image: library/redis:7
  web:
    image: library/nginx:1.25
    depends_on: [db, cache]
  worker:
    image: library/alpine:latest
    depends_on: [web]
`

func TestParseAndStartOrder(t *testing.T) {
	p, err := Parse([]byte(sampleCompose))
	require.NoError(t, err)
	assert.Equal(t, "sample", p.Name)
	require.Len(t, p.Services, 4)

	order, err := p.StartOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["db"], pos["web"])
	assert.Less(t, pos["cache"], pos["web"])
	assert.Less(t, pos["web"], pos["worker"])
}

func TestStartOrderDetectsCycle(t *testing.T) {
	p := &Project{Services: map[string]Service{
		"a": {Image: "x", DependsOn: []string{"b"}},
		"b": {Image: "x", DependsOn: []string{"a"}},
	}}
	_, err := p.StartOrder()
	require.Error(t, err)
}

func TestStartOrderRejectsUndeclaredDependency(t *testing.T) {
	p := &Project{Services: map[string]Service{
		"a": {Image: "x", DependsOn: []string{"ghost"}},
	}}
	_, err := p.StartOrder()
	require.Error(t, err)
}

func TestParseRequiresImageOrBuild(t *testing.T) {
	_, err := Parse([]byte("services:\n  bad:\n    command: [\"true\"]\n"))
	require.Error(t, err)
}

func TestParseRejectsEmptyServices(t *testing.T) {
	_, err := Parse([]byte("name: empty\n"))
	require.Error(t, err)
}
