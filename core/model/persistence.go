package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/textpipe/pkg/errors"
)

// SaveModel serializes a fitted model or transformer to a file with
// encoding/gob. The target must expose its fitted state through exported
// fields for the encoding to capture it.
//
// Example:
//
//	vec := preprocessing.NewTfidfVectorizer()
//	// ... fit ...
//	err := model.SaveModel(vec, "tfidf.gob")
func SaveModel(m interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.NewSerializationError("save", filename, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(m); err != nil {
		return errors.NewSerializationError("save", filename, err)
	}
	return nil
}

// LoadModel reconstructs a previously saved model into m, which must be a
// pointer to a value of the same concrete type that was saved. The gob
// stream is version-sensitive and not self-describing: an absent file, a
// truncated or corrupt stream, or an artifact written by an incompatible
// release all yield a SerializationError, and the caller is expected to
// treat that as fatal.
//
// Example:
//
//	clf := linear_model.NewLogisticRegression()
//	err := model.LoadModel(clf, "clf.gob")
func LoadModel(m interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewSerializationError("load", filename, err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(m); err != nil {
		return errors.NewSerializationError("load", filename, err)
	}
	return nil
}

// SaveModelToWriter serializes a model to an io.Writer.
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.NewSerializationError("save", "<writer>", err)
	}
	return nil
}

// LoadModelFromReader reconstructs a model from an io.Reader into m (a
// pointer to the saved concrete type).
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.NewSerializationError("load", "<reader>", err)
	}
	return nil
}
