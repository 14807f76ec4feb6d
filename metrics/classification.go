// Package metrics provides evaluation metrics for classification models and
// a confusion-matrix display built on gonum/plot.
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/textpipe/pkg/errors"
)

// Accuracy computes the fraction of exactly matching labels.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError computes the fraction of mismatching labels, 1 - accuracy.
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// AUC computes the area under the ROC curve for binary labels {0, 1} with
// probability scores. Ties in the score receive the average rank. When only
// one class is present the metric is undefined and 0.5 is returned with an
// UndefinedMetricWarning.
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	nPos, nNeg := 0, 0
	for i := 0; i < n; i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return 0, errors.NewValueError("AUC", "labels must be binary (0 or 1)")
		}
	}
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present", 0.5))
		return 0.5, nil
	}

	// Rank-sum (Mann-Whitney) formulation with average ranks for ties.
	type scored struct {
		score float64
		label float64
	}
	items := make([]scored, n)
	for i := 0; i < n; i++ {
		items[i] = scored{score: yPred.AtVec(i), label: yTrue.AtVec(i)}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score < items[j].score })

	rankSumPos := 0.0
	i := 0
	for i < n {
		j := i
		for j < n && items[j].score == items[i].score {
			j++
		}
		// ranks are 1-based; tied scores share the average rank
		avgRank := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			if items[k].label == 1 {
				rankSumPos += avgRank
			}
		}
		i = j
	}

	u := rankSumPos - float64(nPos)*float64(nPos+1)/2.0
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix computes AUC over matrix inputs, using the first column of each.
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	tVec, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	pVec, err := firstColumn("AUCMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return AUC(tVec, pVec)
}

// BinaryLogLoss computes the negative log-likelihood of binary labels under
// predicted probabilities, clipping predictions away from 0 and 1.
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	const eps = 1e-15
	loss := 0.0
	for i := 0; i < n; i++ {
		y := yTrue.AtVec(i)
		if y != 0 && y != 1 {
			return 0, errors.NewValueError("BinaryLogLoss", "labels must be binary (0 or 1)")
		}
		p := math.Min(math.Max(yPred.AtVec(i), eps), 1-eps)
		if y == 1 {
			loss -= math.Log(p)
		} else {
			loss -= math.Log(1 - p)
		}
	}
	return loss / float64(n), nil
}

// ConfusionMatrix holds pooled per-class counts: Counts[i][j] is the number
// of samples whose true class is Labels[i] and predicted class is Labels[j].
type ConfusionMatrix struct {
	Labels []float64 // distinct class labels, sorted ascending
	Counts [][]int
}

// NewConfusionMatrix builds the confusion matrix over the union of classes
// appearing in either yTrue or yPred.
func NewConfusionMatrix(yTrue, yPred *mat.VecDense) (*ConfusionMatrix, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	labelSet := make(map[float64]struct{})
	for i := 0; i < n; i++ {
		labelSet[yTrue.AtVec(i)] = struct{}{}
		labelSet[yPred.AtVec(i)] = struct{}{}
	}
	labels := make([]float64, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Float64s(labels)

	index := make(map[float64]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for i := 0; i < n; i++ {
		counts[index[yTrue.AtVec(i)]][index[yPred.AtVec(i)]]++
	}

	return &ConfusionMatrix{Labels: labels, Counts: counts}, nil
}

// TruePositives returns the pooled count of diagonal entries.
func (cm *ConfusionMatrix) TruePositives() int {
	tp := 0
	for i := range cm.Counts {
		tp += cm.Counts[i][i]
	}
	return tp
}

// Total returns the total number of samples counted.
func (cm *ConfusionMatrix) Total() int {
	total := 0
	for i := range cm.Counts {
		for j := range cm.Counts[i] {
			total += cm.Counts[i][j]
		}
	}
	return total
}

// MicroF1 computes the micro-averaged F1 score: true/false positives and
// false negatives are pooled globally across all classes, then
// F1 = 2*TP / (2*TP + FP + FN). When no true positive exists anywhere the
// metric is 0 and an UndefinedMetricWarning is emitted.
func MicroF1(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}

	tp := cm.TruePositives()
	total := cm.Total()
	fp := total - tp // every off-diagonal entry is both a FP and a FN
	fn := total - tp

	if tp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("MicroF1", "no true positives", 0))
		return 0, nil
	}
	return 2 * float64(tp) / float64(2*tp+fp+fn), nil
}

// MacroF1 computes the unweighted mean of per-class F1 scores. Classes with
// no predicted and no true samples contribute an F1 of 0.
func MacroF1(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}

	sum := 0.0
	for i := range cm.Labels {
		tp := cm.Counts[i][i]
		fp, fn := 0, 0
		for j := range cm.Labels {
			if j == i {
				continue
			}
			fp += cm.Counts[j][i]
			fn += cm.Counts[i][j]
		}
		if tp > 0 {
			sum += 2 * float64(tp) / float64(2*tp+fp+fn)
		}
	}
	return sum / float64(len(cm.Labels)), nil
}

// PrecisionRecall returns per-class precision and recall, keyed by class
// label. Ill-defined entries (no predictions or no true samples for a class)
// are reported as 0.
func PrecisionRecall(yTrue, yPred *mat.VecDense) (precision, recall map[float64]float64, err error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}

	precision = make(map[float64]float64, len(cm.Labels))
	recall = make(map[float64]float64, len(cm.Labels))
	for i, label := range cm.Labels {
		tp := cm.Counts[i][i]
		predicted, actual := 0, 0
		for j := range cm.Labels {
			predicted += cm.Counts[j][i]
			actual += cm.Counts[i][j]
		}
		if predicted > 0 {
			precision[label] = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			recall[label] = float64(tp) / float64(actual)
		}
	}
	return precision, recall, nil
}

// MicroF1Matrix computes MicroF1 over matrix inputs, using the first column
// of each.
func MicroF1Matrix(yTrue, yPred mat.Matrix) (float64, error) {
	tVec, err := firstColumn("MicroF1Matrix", yTrue)
	if err != nil {
		return 0, err
	}
	pVec, err := firstColumn("MicroF1Matrix", yPred)
	if err != nil {
		return 0, err
	}
	return MicroF1(tVec, pVec)
}

// AccuracyMatrix computes Accuracy over matrix inputs, using the first
// column of each.
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	tVec, err := firstColumn("AccuracyMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	pVec, err := firstColumn("AccuracyMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(tVec, pVec)
}

// checkPair validates the shared preconditions of paired label vectors.
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// firstColumn extracts the first column of a matrix as a vector.
func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}
