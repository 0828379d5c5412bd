package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadCart(t *testing.T) {
	req, err := readCart(strings.NewReader(`{
  "user_id": "u1",
  "code": "save20",
  "items": [{"product_id": "green", "quantity": 2}],
  "bundles": [{"template_id": "tea-box", "selections": [{"slot_index": 0, "product_id": "black", "quantity": 1}]}],
  "shipping": 1000
}`), "-")
	require.NoError(t, err)
	require.Equal(t, "u1", req.UserID)
	require.Len(t, req.Items, 1)
	require.Equal(t, "tea-box", req.Bundles[0].TemplateID)
	require.Equal(t, int64(1000), req.Shipping)

	_, err = readCart(strings.NewReader(`{"itemz": []}`), "")
	require.Error(t, err)
}

func TestSettleRequiresFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"settle", "--code", "SAVE20"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	require.ErrorContains(t, cmd.Execute(), "--order")
}
