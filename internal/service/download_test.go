package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/academy-store/internal/model"
)

func TestDownload_Gate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	st := student(env)
	paidMaterial(env, "m1")

	_, err := env.svc.Download(ctx, st, "m1", model.FileTypeProblem)
	require.ErrorIs(t, err, ErrForbidden)

	o := paidOrder(env, t, st, "m1", model.FileTypeProblem)

	d, err := env.svc.Download(ctx, st, "m1", "")
	require.NoError(t, err)
	assert.Contains(t, d.URL, "m1/problem.pdf")
	assert.Equal(t, "한빛고_2024년_2학년_수학_함수.pdf", d.Filename)

	_, err = env.svc.Download(ctx, st, "m1", model.FileTypeEtc)
	require.ErrorIs(t, err, ErrForbidden, "order covers only the problem file")

	stored := env.repo.order(o.OrderID)
	assert.True(t, stored.HasDownloaded)
	assert.Equal(t, []model.FileType{model.FileTypeProblem}, stored.DownloadedFileTypes)

	m, _ := env.repo.GetMaterial(ctx, "m1")
	assert.EqualValues(t, 1, m.DownloadCount)
}

func TestDownload_RefundedOrderIsForbidden(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	st := student(env)
	paidMaterial(env, "m1")
	o := paidOrder(env, t, st, "m1", model.FileTypeProblem)

	_, err := env.svc.RefundOrder(ctx, st, o.OrderID, "")
	require.NoError(t, err)

	_, err = env.svc.Download(ctx, st, "m1", model.FileTypeProblem)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDownload_RefundDuringDownloadIsForbidden(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	st := student(env)
	paidMaterial(env, "m1")
	o := paidOrder(env, t, st, "m1", model.FileTypeProblem)

	env.svc.storage = storageFunc(func(ctx context.Context, key, filename string) (string, error) {
		_, err := env.svc.RefundOrder(ctx, st, o.OrderID, "")
		require.NoError(t, err)
		return fakeStorage{}.DownloadURL(ctx, key, filename)
	})

	_, err := env.svc.Download(ctx, st, "m1", model.FileTypeProblem)
	require.ErrorIs(t, err, ErrForbidden)

	stored := env.repo.order(o.OrderID)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
	assert.False(t, stored.HasDownloaded)
	assert.Empty(t, stored.DownloadedFileTypes)
	assert.Nil(t, stored.DownloadedAt)

	m, _ := env.repo.GetMaterial(ctx, "m1")
	assert.EqualValues(t, 0, m.DownloadCount)
}

func TestDownload_FreeAndAdmin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	st := student(env)
	adm := admin(env)
	paidMaterial(env, "paid")
	env.repo.addMaterial(model.Material{MaterialID: "free", Subject: "수학", IsFree: true, ProblemFile: "free/problem.pdf"})

	_, err := env.svc.Download(ctx, st, "free", model.FileTypeProblem)
	require.NoError(t, err)

	d, err := env.svc.Download(ctx, adm, "paid", model.FileTypeEtc)
	require.NoError(t, err)
	assert.Equal(t, "한빛고_2024년_2학년_수학_함수_(기타).hwp", d.Filename)

	_, err = env.svc.Download(ctx, st, "free", model.FileTypeEtc)
	require.ErrorIs(t, err, ErrFileUnavailable)

	_, err = env.svc.Download(ctx, Actor{}, "free", model.FileTypeProblem)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svc.Download(ctx, st, "missing", model.FileTypeProblem)
	require.ErrorIs(t, err, ErrNotFound)
}
