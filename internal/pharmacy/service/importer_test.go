package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/pharmacy-backend/pkg/errors"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
)

const importHeader = "medicine_name,batch_number,quantity,expiry_date,shelf_location,cost_per_unit\n"

func newImporter(env *fakeEnv) *StockImporter {
	return NewStockImporter(nil, env.medicines, env.dispensing, logger.New("test", "test"))
}

func TestImport_ReceivesEachRow(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	expiry := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")

	csv := importHeader +
		"Paracetamol 500mg,BN-001,100," + expiry + ",A-1,0.12\n" +
		"Paracetamol 500mg,BN-002,50," + expiry + ",A-2,\n"

	result, err := newImporter(env).Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)

	assert.Equal(t, 150, sumAvailable(env, med.ID))
	assert.Len(t, env.state.movements, 2)
}

func TestImport_BadRowsAreReportedNotFatal(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	expiry := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")

	csv := importHeader +
		"Paracetamol 500mg,BN-001,100," + expiry + ",A-1,\n" +
		"Unknown Drug,BN-002,50," + expiry + ",A-2,\n" +
		"Paracetamol 500mg,BN-003,abc," + expiry + ",A-3,\n" +
		"Paracetamol 500mg,BN-004,10,2020-01-01,A-4,\n"

	result, err := newImporter(env).Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	require.Len(t, result.Errors, 3)

	// Line numbers are file lines, header included.
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Contains(t, result.Errors[0].Message, "Unknown Drug")
	assert.Equal(t, 4, result.Errors[1].Line)
	assert.Contains(t, result.Errors[1].Message, "quantity")
	assert.Equal(t, 5, result.Errors[2].Line)

	// The good row landed.
	assert.Equal(t, 100, sumAvailable(env, med.ID))
}

func TestImport_RejectsWrongHeader(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	_, err := newImporter(env).Import(ctx, strings.NewReader("name,qty\nfoo,1\n"))
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestImport_RejectsEmptyFile(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	_, err := newImporter(env).Import(ctx, strings.NewReader(""))
	assert.ErrorIs(t, err, errors.ErrBadRequest)
}

func TestImport_HeaderIsCaseInsensitive(t *testing.T) {
	env := newFakeEnv()
	ctx := context.Background()

	med := env.addMedicine("Paracetamol 500mg", 5)
	expiry := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")

	csv := "Medicine_Name,Batch_Number,Quantity,Expiry_Date,Shelf_Location,Cost_Per_Unit\n" +
		"Paracetamol 500mg,BN-001,10," + expiry + ",A-1,\n"

	result, err := newImporter(env).Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 10, sumAvailable(env, med.ID))
}
