package util

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestIsS3Path(t *testing.T) {
	assert.Equal(t, IsS3Path("s3://bucket/a.jar"), true)
	assert.Equal(t, IsS3Path("s3a://bucket/a.jar"), true)
	assert.Equal(t, IsS3Path("s3n://bucket/a.jar"), true)
	assert.Equal(t, IsS3Path("s3p://bucket/a.jar"), true)
	assert.Equal(t, IsS3Path("hdfs://nn/a.jar"), false)
	assert.Equal(t, IsS3Path("file:///tmp/a.jar"), false)
	assert.Equal(t, IsS3Path("/opt/flink/lib/a.jar"), false)
	assert.Equal(t, IsS3Path(""), false)
}

func TestPurePath(t *testing.T) {
	assert.Equal(t, PurePath("s3://bucket/app.jar"), "bucket/app.jar")
	assert.Equal(t, PurePath("s3p://bucket/a/b/c.jar"), "bucket/a/b/c.jar")
	assert.Equal(t, PurePath("//bucket/app.jar"), "bucket/app.jar")
	assert.Equal(t, PurePath("bucket/app.jar"), "bucket/app.jar")
}

func TestReviseToS3pSchema(t *testing.T) {
	assert.Equal(t, ReviseToS3pSchema("s3://b/ha"), "s3p://b/ha")
	assert.Equal(t, ReviseToS3pSchema("s3a://b/ha"), "s3p://b/ha")
	assert.Equal(t, ReviseToS3pSchema("s3n://b/ha"), "s3p://b/ha")
	assert.Equal(t, ReviseToS3pSchema("s3p://b/ha"), "s3p://b/ha")
	assert.Equal(t, ReviseToS3pSchema("hdfs://nn/ha"), "hdfs://nn/ha")
	assert.Equal(t, ReviseToS3pSchema("/local/ha"), "/local/ha")
}

func TestPathBaseName(t *testing.T) {
	assert.Equal(t, PathBaseName("s3://bucket/a/app.jar"), "app.jar")
	assert.Equal(t, PathBaseName("/opt/flink/lib/udf.jar"), "udf.jar")
}

func TestGuards(t *testing.T) {
	assert.Equal(t, EnsurePositiveFloat(2.5, 1.0), 2.5)
	assert.Equal(t, EnsurePositiveFloat(0, 1.0), 1.0)
	assert.Equal(t, EnsurePositiveFloat(-3, 1.0), 1.0)
	assert.Equal(t, EnsureIntMin(0, 1), 1)
	assert.Equal(t, EnsureIntMin(8, 1), 8)
	assert.Equal(t, EnsureInt32Min(-1, 1920), int32(1920))
}
