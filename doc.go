// Package textpipe provides reusable text-classification pipelines for Go,
// designed for workflows that persist fitted feature extractors and models,
// reload them later, and recompose them into end-to-end pipelines.
//
// The library offers a scikit-learn-like API: transformers and estimators
// share a uniform Fit/Transform/Predict contract, pipelines chain them into a
// single estimator, and model selection utilities (k-fold cross-validation,
// exhaustive grid search) operate on anything satisfying that contract.
//
// # Quick Start
//
// Reload a persisted TF-IDF vectorizer and classifier, compose them, and
// refit on fresh data:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/textpipe/core/model"
//	    "github.com/YuminosukeSato/textpipe/linear_model"
//	    "github.com/YuminosukeSato/textpipe/pipeline"
//	    "github.com/YuminosukeSato/textpipe/preprocessing"
//	)
//
//	func main() {
//	    vec := preprocessing.NewTfidfVectorizer()
//	    if err := model.LoadModel(vec, "tfidf.gob"); err != nil {
//	        log.Fatal(err)
//	    }
//	    clf := linear_model.NewLogisticRegression()
//	    if err := model.LoadModel(clf, "clf.gob"); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    pipe := pipeline.New(
//	        pipeline.Step{Name: "tfidf", Estimator: vec},
//	        pipeline.Step{Name: "clf", Estimator: clf},
//	    )
//	    if err := pipe.FitStrings(texts, y); err != nil {
//	        log.Fatal(err)
//	    }
//	    preds, err := pipe.PredictStrings(testTexts)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(preds)
//	}
//
// # Packages
//
// The library is organized into several packages:
//
//   - dataset: columnar (CSV) dataset loading and seeded train/test splits
//   - preprocessing: CountVectorizer, TfidfTransformer, TfidfVectorizer
//   - pipeline: ordered transformer/estimator composition
//   - linear_model: LogisticRegression
//   - tree, ensemble: DecisionTreeClassifier, RandomForestClassifier
//   - metrics: classification metrics and confusion-matrix displays
//   - model_selection: KFold, CrossValidate, GridSearchCV
//   - core/model: shared interfaces, state management, gob persistence
//
// # Persistence
//
// Fitted transformers and models serialize with encoding/gob through
// core/model. The format is version-sensitive and not self-describing: a file
// written by one release must be read back with a matching release, and a
// missing, truncated, or incompatible file is a fatal load error.
package textpipe
